package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-lifecycle"
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgNotVerified        = "account email not verified"
	msgEmailTaken         = "email already registered"
	msgSessionInvalid     = "session invalid or expired"
	msgLinkInvalid        = "link invalid or expired"
	msgInvalidInput       = "invalid input"
	msgUnavailable        = "service temporarily unavailable"
	msgInternal           = "internal error"
	msgNotFound           = "not found"

	// returned for reset and resend requests whether or not the account exists
	msgMailAccepted = "if an account exists for this email, a message has been sent"
)

const textCodeValidation = "VALIDATION_FAILED"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// statusFor maps a taxonomy error to an HTTP status and a user-facing
// message. Messages never distinguish unknown emails from bad passwords.
func statusFor(err error) (int, string, string) {
	code := auth.KindOf(err)
	switch code {
	case auth.TextCodeInvalidCredentials:
		return fiber.StatusUnauthorized, code, msgInvalidCredentials
	case auth.TextCodeNotVerified:
		return fiber.StatusForbidden, code, msgNotVerified
	case auth.TextCodeEmailTaken:
		return fiber.StatusConflict, code, msgEmailTaken
	case auth.TextCodeTokenMalformed,
		auth.TextCodeTokenExpired,
		auth.TextCodeTokenRevoked,
		auth.TextCodeTokenKindMismatch,
		auth.TextCodeUnauthenticated:
		return fiber.StatusUnauthorized, auth.TextCodeUnauthenticated, msgSessionInvalid
	case auth.TextCodeTokenInvalid:
		return fiber.StatusBadRequest, code, msgLinkInvalid
	case auth.TextCodeInvalidInput:
		return fiber.StatusBadRequest, code, msgInvalidInput
	case auth.TextCodeNotFound:
		return fiber.StatusNotFound, code, msgNotFound
	case auth.TextCodeStoreUnavailable, auth.TextCodeMailUnavailable:
		return fiber.StatusServiceUnavailable, code, msgUnavailable
	}
	return fiber.StatusInternalServerError, "INTERNAL", msgInternal
}

func (a *Controller) fail(c *fiber.Ctx, err error) error {
	var verr validation.Errors
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorEnvelope{Error: errorBody{
			Code:    textCodeValidation,
			Message: msgInvalidInput,
			Details: verr,
		}})
	}

	status, code, msg := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		a.logger.Error("request failed", "path", c.Path(), "code", code, "error", err)
	}
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(status).JSON(errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

func (a *Controller) badRequest(c *fiber.Ctx, err error) error {
	a.logger.Debug("request body rejected", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope{Error: errorBody{
		Code:    auth.TextCodeInvalidInput,
		Message: msgInvalidInput,
	}})
}
