package auth

import (
	"context"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type RegisterAccountMessage struct {
	Email      string `json:"email" example:"ada@example.com" doc:"Account email"`
	Password   string `json:"password" example:"some_secret_word" doc:"Password"`
	OnResponse func(res SignUpResult)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountHandler struct {
	lifecycle *AccountLifecycle
}

var (
	_ command.Message                           = RegisterAccountMessage{}
	_ command.Commander[RegisterAccountMessage] = (*RegisterAccountHandler)(nil)
)

func NewRegisterAccountHandler(lifecycle *AccountLifecycle) *RegisterAccountHandler {
	return &RegisterAccountHandler{lifecycle: lifecycle}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	res, err := h.lifecycle.SignUp(ctx, event.Email, event.Password)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(res)
	}
	return nil
}
