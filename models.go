package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus tracks verification of the account email.
type AccountStatus string

const (
	// AccountStatusUnverified is the state of a freshly signed up account
	AccountStatusUnverified AccountStatus = "unverified"
	// AccountStatusVerified is reached once, by confirming the email
	AccountStatusVerified AccountStatus = "verified"
)

// Account is the credential record owned by the account repository
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Email         string        `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string        `bun:"password_hash,notnull" json:"-"`
	Status        AccountStatus `bun:"status,notnull,default:'unverified'" json:"status"`
	VerifiedAt    *time.Time    `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	LastLoginAt   *time.Time    `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	LastLoginIP   string        `bun:"last_login_ip,nullzero" json:"last_login_ip,omitempty"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Verified reports whether the account email has been confirmed
func (a *Account) Verified() bool {
	return a != nil && a.Status == AccountStatusVerified
}

// EnsureStatus defaults empty statuses to unverified.
func (a *Account) EnsureStatus() {
	if a != nil && a.Status == "" {
		a.Status = AccountStatusUnverified
	}
}

// AccountView is the public projection of an account.
type AccountView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// View returns the public projection of the account.
func (a *Account) View() AccountView {
	return AccountView{
		ID:          a.ID.String(),
		Email:       a.Email,
		Verified:    a.Verified(),
		VerifiedAt:  a.VerifiedAt,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
