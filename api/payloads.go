package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	minPasswordLength = 6
	// bcrypt rejects passwords past 72 bytes
	maxPasswordLength = 72
)

var passwordRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(minPasswordLength, maxPasswordLength),
	validation.By(maxBytes(maxPasswordLength)),
}

// SignUpPayload is the signup request body
type SignUpPayload struct {
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// Validate will validate the payload
func (r SignUpPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate only checks presence; credential failures stay uniform
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// TokenPayload carries a one-time or refresh token
type TokenPayload struct {
	Token string `json:"token" form:"token" query:"token"`
}

// Validate will validate the payload
func (r TokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Length(1, 4096)),
	)
}

// EmailPayload carries just an email, for resend and reset requests
type EmailPayload struct {
	Email string `json:"email" form:"email"`
}

// Validate will validate the payload
func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
	)
}

// PasswordResetConfirmPayload sets a new password with a reset token
type PasswordResetConfirmPayload struct {
	Token           string `json:"token" form:"token"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Length(1, 4096)),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func maxBytes(n int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > n {
			return errors.New("is too long")
		}
		return nil
	}
}
