package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// SessionState is the authentication state reported on session events
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticating  SessionState = "authenticating"
	SessionActive          SessionState = "active"
	SessionRevoked         SessionState = "revoked"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Account *Account
	From    AccountStatus
	To      AccountStatus
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*AccountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *AccountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// AccountStateMachine guards the verification status of accounts.
// The only edge is unverified -> verified.
type AccountStateMachine struct {
	accounts     AccountRepository
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// NewAccountStateMachine returns a state machine persisting through accounts.
func NewAccountStateMachine(accounts AccountRepository, opts ...StateMachineOption) *AccountStateMachine {
	sm := &AccountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusUnverified: {
				AccountStatusVerified: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// CanTransition reports whether from -> to is an allowed edge
func (sm *AccountStateMachine) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves account to target, persisting the change. Moving to
// the current status is a no-op.
func (sm *AccountStateMachine) Transition(ctx context.Context, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil || target == "" {
		return nil, ErrInvalidTransition
	}

	account.EnsureStatus()
	from := account.Status
	if from == target {
		return account, nil
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{
		Account: account,
		From:    from,
		To:      target,
		Meta:    options.metadata,
	}

	if err := runHooks(ctx, options.beforeHooks, tc); err != nil {
		return nil, err
	}

	now := sm.now()
	if target == AccountStatusVerified {
		if err := sm.accounts.SetVerified(ctx, account.ID, now); err != nil {
			return nil, err
		}
		account.VerifiedAt = &now
	}
	account.Status = target

	if err := runHooks(ctx, options.afterHooks, tc); err != nil {
		return nil, err
	}

	activityRecorder{sink: sm.activitySink, logger: sm.logger, now: sm.now}.record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		AccountID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   transitionMetadata(tc.Meta),
	})

	return account, nil
}

func runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta.Metadata)+1)
	for k, v := range meta.Metadata {
		out[k] = v
	}
	if meta.Reason != "" {
		out["reason"] = meta.Reason
	}
	return out
}
