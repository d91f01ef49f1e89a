package activitymap_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/activitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventAccountStatusChanged,
		AccountID:  "acc-100",
		FromStatus: auth.AccountStatusUnverified,
		ToStatus:   auth.AccountStatusVerified,
		Metadata:   map[string]any{"reason": "email_confirmed"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "acc-100", out.ActorID)
	assert.Equal(t, string(auth.ActivityEventAccountStatusChanged), out.Verb)
	assert.Equal(t, "account", out.ObjectType)
	assert.Equal(t, "acc-100", out.ObjectID)
	assert.Equal(t, "auth", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))
	assert.Equal(t, "email_confirmed", out.Metadata["reason"])
	assert.Equal(t, string(auth.AccountStatusUnverified), out.Metadata[activitymap.MetadataKeyFromStatus])
	assert.Equal(t, string(auth.AccountStatusVerified), out.Metadata[activitymap.MetadataKeyToStatus])
	assert.Len(t, event.Metadata, 1, "source metadata must not change")
}

func TestNormalizeAnonymousLoginFailure(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(auth.ActivityEvent{
		EventType:    auth.ActivityEventLoginFailure,
		SessionState: auth.SessionUnauthenticated,
		Metadata:     map[string]any{"reason": "unknown_email"},
	}, activitymap.WithActorFallback("ip:203.0.113.9"), activitymap.WithChannel("api"))

	assert.Equal(t, "ip:203.0.113.9", out.ActorID)
	assert.Empty(t, out.ObjectID)
	assert.Equal(t, "api", out.Channel)
	assert.Equal(t, string(auth.SessionUnauthenticated), out.Metadata[activitymap.MetadataKeySessionState])
	assert.False(t, out.OccurredAt.IsZero())
}

func TestNormalizeWithoutMetadata(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventSignUp, AccountID: "acc-1"})
	assert.Nil(t, out.Metadata)
}

func TestZapSinkWritesRecord(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := activitymap.ZapSink(zap.New(core))

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventSessionRevoked,
		AccountID: "acc-7",
		Metadata:  map[string]any{"reason": "logout"},
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, string(auth.ActivityEventSessionRevoked), fields["verb"])
	assert.Equal(t, "acc-7", fields["actor_id"])
}
