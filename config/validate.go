package config

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
)

// MinSigningKeyLength is the shortest HS256 secret accepted
const MinSigningKeyLength = 32

const textCodeInvalidConfig = "INVALID_CONFIG"

// Validate checks the configuration against the token lifetime policy
// and the supported drivers.
func (c *Config) Validate() error {
	policy := auth.DefaultTTLPolicy()

	err := validation.Errors{
		"server": validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Addr, validation.Required),
			validation.Field(&c.Server.ShutdownTimeout, validation.Min(time.Second)),
		),
		"tokens": validation.ValidateStruct(&c.Tokens,
			validation.Field(&c.Tokens.SigningKey,
				validation.Required,
				validation.RuneLength(MinSigningKeyLength, 0),
			),
			validation.Field(&c.Tokens.AccessTTL, within(policy[auth.TokenAccess])...),
			validation.Field(&c.Tokens.RefreshTTL,
				append(within(policy[auth.TokenRefresh]), validation.By(longerThan(c.Tokens.AccessTTL)))...,
			),
			validation.Field(&c.Tokens.ConfirmTTL, within(policy[auth.TokenEmailConfirm])...),
			validation.Field(&c.Tokens.ResetTTL, within(policy[auth.TokenPasswordReset])...),
		),
		"hasher": validation.ValidateStruct(&c.Hasher,
			validation.Field(&c.Hasher.Cost, validation.Min(auth.MinHashCost), validation.Max(31)),
		),
		"store": validation.ValidateStruct(&c.Store,
			validation.Field(&c.Store.Driver, validation.Required, validation.In(StoreMemory, StoreRedis)),
			validation.Field(&c.Store.Shards, validation.Min(1)),
			validation.Field(&c.Store.RedisAddr, when(c.Store.Driver == StoreRedis, validation.Required)...),
		),
		"mail": validation.ValidateStruct(&c.Mail,
			validation.Field(&c.Mail.Driver, validation.Required, validation.In(MailLog, MailSMTP)),
			validation.Field(&c.Mail.From, validation.Required, is.Email),
			validation.Field(&c.Mail.BaseURL, validation.Required, is.URL),
			validation.Field(&c.Mail.SMTPHost, when(c.Mail.Driver == MailSMTP, validation.Required)...),
			validation.Field(&c.Mail.SMTPPort, when(c.Mail.Driver == MailSMTP, validation.Required, validation.Max(65535))...),
		),
		"cookies": validation.ValidateStruct(&c.Cookies,
			validation.Field(&c.Cookies.SameSite, validation.In("Lax", "Strict", "None")),
			validation.Field(&c.Cookies.Secure, validation.By(secureWhenSameSiteNone(c.Cookies.SameSite))),
			validation.Field(&c.Cookies.AccessName, when(c.Cookies.Enabled, validation.Required)...),
			validation.Field(&c.Cookies.RefreshName, when(c.Cookies.Enabled, validation.Required)...),
			validation.Field(&c.Cookies.CSRFKey, validation.RuneLength(32, 0)),
		),
		"operation_timeout": validation.Validate(c.OperationTimeout, validation.Required, validation.Min(100*time.Millisecond)),
	}.Filter()

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithTextCode(textCodeInvalidConfig)
	}
	return nil
}

// when returns rules only if cond holds
func when(cond bool, rules ...validation.Rule) []validation.Rule {
	if !cond {
		return nil
	}
	return rules
}

func within(w auth.TTLWindow) []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Min(w.Min),
		validation.Max(w.Max),
	}
}

func longerThan(other time.Duration) validation.RuleFunc {
	return func(value any) error {
		d, _ := value.(time.Duration)
		if d <= other {
			return errors.New("must be longer than the access token lifetime")
		}
		return nil
	}
}

func secureWhenSameSiteNone(sameSite string) validation.RuleFunc {
	return func(value any) error {
		secure, _ := value.(bool)
		if sameSite == "None" && !secure {
			return errors.New("must be true when same_site is None")
		}
		return nil
	}
}
