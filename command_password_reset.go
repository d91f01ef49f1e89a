package auth

import (
	"context"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type PasswordResetRequestMessage struct {
	Email string `json:"email" example:"ada@example.com" doc:"Account email"`
}

func (e PasswordResetRequestMessage) Type() string { return "account.password_reset.request" }

type PasswordResetFinalizeMessage struct {
	Token    string `json:"token" doc:"Reset token from the mailed link"`
	Password string `json:"password" example:"some_secret_word" doc:"New password"`
}

func (e PasswordResetFinalizeMessage) Type() string { return "account.password_reset.finalize" }

var (
	_ command.Message                                 = PasswordResetRequestMessage{}
	_ command.Message                                 = PasswordResetFinalizeMessage{}
	_ command.Commander[PasswordResetRequestMessage]  = (*PasswordResetRequestHandler)(nil)
	_ command.Commander[PasswordResetFinalizeMessage] = (*PasswordResetFinalizeHandler)(nil)
)

// PasswordResetRequestHandler mails a reset link. Unknown emails succeed
// silently so callers cannot enumerate registered addresses.
type PasswordResetRequestHandler struct {
	lifecycle *AccountLifecycle
}

func NewPasswordResetRequestHandler(lifecycle *AccountLifecycle) *PasswordResetRequestHandler {
	return &PasswordResetRequestHandler{lifecycle: lifecycle}
}

func (h *PasswordResetRequestHandler) Execute(ctx context.Context, event PasswordResetRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
	}

	err := h.lifecycle.RequestPasswordReset(ctx, event.Email)
	if IsKind(err, TextCodeNotFound) {
		return nil
	}
	return err
}

type PasswordResetFinalizeHandler struct {
	lifecycle *AccountLifecycle
}

func NewPasswordResetFinalizeHandler(lifecycle *AccountLifecycle) *PasswordResetFinalizeHandler {
	return &PasswordResetFinalizeHandler{lifecycle: lifecycle}
}

func (h *PasswordResetFinalizeHandler) Execute(ctx context.Context, event PasswordResetFinalizeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.lifecycle.ConfirmPasswordReset(ctx, event.Token, event.Password)
	}
}
