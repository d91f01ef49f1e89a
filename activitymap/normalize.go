// Package activitymap turns auth.ActivityEvent values into a flat record
// that audit pipelines can store or ship without importing auth.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
)

const (
	MetadataKeyFromStatus   = "from_status"
	MetadataKeyToStatus     = "to_status"
	MetadataKeySessionState = "session_state"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "anonymous"
)

// Record is the normalized activity shape
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// WithChannel sets the channel stamped on every record
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the object type stamped on every record
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback names the actor of events without an account,
// such as a login attempt for an unknown email.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts event. The source metadata map is never mutated.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	accountID := strings.TrimSpace(event.AccountID)
	actorID := accountID
	if actorID == "" {
		actorID = o.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Record{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   accountID,
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		out[k] = v
	}
	if event.FromStatus != "" {
		out[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		out[MetadataKeyToStatus] = string(event.ToStatus)
	}
	if event.SessionState != "" {
		out[MetadataKeySessionState] = string(event.SessionState)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
