package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger takes a message followed by alternating key/value pairs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the process-wide settings the core reads once at startup
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetTokenTTL(kind TokenKind) time.Duration
	GetHashCost() int
	GetOperationTimeout() time.Duration
}

// AccountRepository is the persistence boundary for accounts.
// Create must report ErrEmailTaken on a uniqueness violation and
// lookups must report ErrNotFound for missing rows. SetVerified only
// updates unverified rows and reports ErrAlreadyVerified otherwise.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, email, passwordHash string) (*Account, error)
	SetVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// LoginRecorder is implemented by repositories that track login metadata
type LoginRecorder interface {
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, ip string) error
}

// MailTemplate names the message a Mailer renders
type MailTemplate string

const (
	MailConfirmAccount MailTemplate = "confirm_account"
	MailResetPassword  MailTemplate = "reset_password"
)

// Mail is a single outbound message handed to the Mailer
type Mail struct {
	To       string
	Subject  string
	Template MailTemplate
	// Link is the host URL carrying the signed token
	Link      string
	ExpiresAt time.Time
}

// Mailer delivers account mails. It does not know how tokens are built.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// MailerFunc adapts a function to the Mailer interface
type MailerFunc func(ctx context.Context, mail Mail) error

// Send implements Mailer
func (f MailerFunc) Send(ctx context.Context, mail Mail) error {
	return f(ctx, mail)
}

// TokenStore keeps one-time and refresh nonces with a TTL.
// Put fails with ErrDuplicateKey on a live key. Consume is an atomic
// read-and-delete returning ErrNotFound for absent or expired keys.
type TokenStore interface {
	Put(ctx context.Context, key, subject string, ttl time.Duration) error
	Consume(ctx context.Context, key string) (string, error)
	Revoke(ctx context.Context, key string) error
	RevokeSubject(ctx context.Context, subject string) (int, error)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print(formatLine("DBG", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print(formatLine("INF", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print(formatLine("WRN", msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print(formatLine("ERR", msg, args))
}

func formatLine(level, msg string, args []any) string {
	var b strings.Builder
	b.WriteString("[" + level + "] AUTH ")
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards everything
func NoopLogger() Logger {
	return noopLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
