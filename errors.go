package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	TextCodeNotVerified             = "ACCOUNT_NOT_VERIFIED"
	TextCodeEmailTaken              = "EMAIL_TAKEN"
	TextCodeTokenMalformed          = "TOKEN_MALFORMED"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeTokenRevoked            = "TOKEN_REVOKED"
	TextCodeTokenInvalid            = "TOKEN_INVALID"
	TextCodeTokenKindMismatch       = "TOKEN_KIND_MISMATCH"
	TextCodeUnauthenticated         = "UNAUTHENTICATED"
	TextCodeCorruptCredentialRecord = "CORRUPT_CREDENTIAL_RECORD"
	TextCodeStoreUnavailable        = "STORE_UNAVAILABLE"
	TextCodeSigningUnavailable      = "SIGNING_UNAVAILABLE"
	TextCodeDuplicateKey            = "DUPLICATE_KEY"
	TextCodeNotFound                = "NOT_FOUND"
	TextCodeInvalidInput            = "INVALID_INPUT"
	TextCodeMailUnavailable         = "MAIL_UNAVAILABLE"
	TextCodeAlreadyVerified         = "ACCOUNT_ALREADY_VERIFIED"
)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotVerified is returned on login before the account email is confirmed.
var ErrNotVerified = goerrors.New("account email not verified", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotVerified).
	WithCode(goerrors.CodeForbidden)

// ErrEmailTaken is returned when signing up with an email already registered.
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrTokenMalformed covers bad structure, bad signature and unexpected algorithms.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token's expiry is in the past.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenRevoked is returned when a refresh token was already used or revoked.
var ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is the collapsed failure for one-time links.
var ErrTokenInvalid = goerrors.New("link invalid or expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenKindMismatch is returned when a token is presented for the wrong purpose.
var ErrTokenKindMismatch = goerrors.New("token kind mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenKindMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated is the only failure AuthGuard reports.
var ErrUnauthenticated = goerrors.New("unauthenticated", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrCorruptCredentialRecord signals a stored password hash that cannot be parsed.
var ErrCorruptCredentialRecord = goerrors.New("stored credential is corrupt", goerrors.CategoryInternal).
	WithTextCode(TextCodeCorruptCredentialRecord).
	WithCode(goerrors.CodeInternal)

// ErrStoreUnavailable is a transient failure of the token store or repository.
var ErrStoreUnavailable = goerrors.New("token store unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrSigningUnavailable is returned when no signing key is configured.
var ErrSigningUnavailable = goerrors.New("token signing key unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeSigningUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrDuplicateKey is returned by TokenStore.Put for a live key.
var ErrDuplicateKey = goerrors.New("token key already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateKey).
	WithCode(goerrors.CodeConflict)

// ErrNotFound is returned for missing accounts and missing store entries.
var ErrNotFound = goerrors.New("not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidInput is returned for empty or oversized inputs.
var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrMailUnavailable is returned when the mail collaborator fails.
var ErrMailUnavailable = goerrors.New("mail delivery failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeMailUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrAlreadyVerified is returned by AccountRepository.SetVerified when the
// account left the unverified state before the update ran.
var ErrAlreadyVerified = goerrors.New("account already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// KindOf returns the text code of the first taxonomy error found in
// err's chain, or an empty string for errors outside the taxonomy.
func KindOf(err error) string {
	code := ""
	walkErrors(err, func(e error) bool {
		if richErr, ok := e.(*goerrors.Error); ok && richErr.TextCode != "" {
			code = richErr.TextCode
			return true
		}
		return false
	})
	return code
}

// IsKind reports whether err carries the given text code.
func IsKind(err error, textCode string) bool {
	return textCode != "" && KindOf(err) == textCode
}

func walkErrors(err error, visit func(error) bool) bool {
	if err == nil {
		return false
	}
	if visit(err) {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if walkErrors(inner, visit) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return walkErrors(x.Unwrap(), visit)
	}
	return false
}

// WrapKind attaches cause to a taxonomy sentinel. The result matches the
// sentinel through errors.Is and KindOf, and still unwraps to cause.
func WrapKind(sentinel *goerrors.Error, cause error, msg string) error {
	if cause == nil {
		return sentinel
	}
	return &kindError{sentinel: sentinel, msg: msg, cause: cause}
}

func storeFailure(err error, msg string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) == TextCodeStoreUnavailable {
		return err
	}
	return WrapKind(ErrStoreUnavailable, err, msg)
}

type kindError struct {
	sentinel *goerrors.Error
	msg      string
	cause    error
}

func (e *kindError) Error() string {
	if e.msg == "" {
		return e.sentinel.Message + ": " + e.cause.Error()
	}
	return e.sentinel.Message + ": " + e.msg + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}
