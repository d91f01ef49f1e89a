package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountStatusChanged   ActivityEventType = "account.status.changed"
	ActivityEventSignUp                 ActivityEventType = "auth.signup"
	ActivityEventConfirmationSent       ActivityEventType = "auth.confirmation.sent"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventSessionRefreshed       ActivityEventType = "auth.session.refreshed"
	ActivityEventSessionRevoked         ActivityEventType = "auth.session.revoked"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "auth.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
// It never carries passwords, hashes or raw tokens.
type ActivityEvent struct {
	EventType    ActivityEventType
	AccountID    string
	FromStatus   AccountStatus
	ToStatus     AccountStatus
	SessionState SessionState
	Metadata     map[string]any
	OccurredAt   time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// activityRecorder stamps and publishes events, logging sink failures
// instead of failing the operation that produced them.
type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if r.sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("activity sink failed", "event", event.EventType, "account_id", event.AccountID, "error", err)
	}
}
