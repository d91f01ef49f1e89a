package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var selectAccountByEmailSQL = `SELECT * FROM "accounts" AS "acc"
WHERE "acc"."email" = ?
LIMIT 1;`

var verifyAccountSQL = `UPDATE "accounts"
SET
	"status" = ?,
	"verified_at" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
AND "status" = ?
RETURNING *;`

var setPasswordHashSQL = `UPDATE "accounts"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
RETURNING *;`

// AccountRepository implements auth.AccountRepository on a go-repository-bun
// repository of accounts.
type AccountRepository struct {
	records repository.Repository[*auth.Account]
	db      *bun.DB
	now     func() time.Time
}

var (
	_ auth.AccountRepository = (*AccountRepository)(nil)
	_ auth.LoginRecorder     = (*AccountRepository)(nil)
)

// Option customizes a repository
type Option func(*AccountRepository)

// WithClock injects the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(r *AccountRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewAccountRepository creates a new repository.
func NewAccountRepository(db *bun.DB, opts ...Option) *AccountRepository {
	records := repository.NewRepository[*auth.Account](db, repository.ModelHandlers[*auth.Account]{
		NewRecord: func() *auth.Account { return &auth.Account{} },
		GetID: func(a *auth.Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *auth.Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	r := &AccountRepository{records: records, db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// FindByEmail implements auth.AccountRepository.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	rows, err := r.records.RawTx(ctx, r.db, selectAccountByEmailSQL, auth.NormalizeEmail(email))
	if err != nil {
		return nil, mapError(err, "find account by email")
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, auth.ErrNotFound
	}
	return rows[0], nil
}

// FindByID implements auth.AccountRepository.
func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	account, err := r.records.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapError(err, "find account by id")
	}
	if account == nil {
		return nil, auth.ErrNotFound
	}
	return account, nil
}

// Create implements auth.AccountRepository. The unique index on email is
// what turns a concurrent duplicate signup into auth.ErrEmailTaken.
func (r *AccountRepository) Create(ctx context.Context, email, passwordHash string) (*auth.Account, error) {
	now := r.now().UTC()
	account := &auth.Account{
		ID:           uuid.New(),
		Email:        auth.NormalizeEmail(email),
		PasswordHash: passwordHash,
		Status:       auth.AccountStatusUnverified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := r.records.CreateTx(ctx, r.db, account)
	if err != nil {
		if isUniqueViolation(err) || r.emailTaken(ctx, account.Email) {
			return nil, auth.ErrEmailTaken
		}
		return nil, mapError(err, "create account")
	}
	if created == nil {
		return account, nil
	}
	return created, nil
}

// SetVerified implements auth.AccountRepository. Only unverified rows are
// updated so verified_at is written once.
func (r *AccountRepository) SetVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	rows, err := r.records.RawTx(ctx, r.db, verifyAccountSQL,
		auth.AccountStatusVerified, at.UTC(), r.now().UTC(), id.String(), auth.AccountStatusUnverified)
	if err != nil {
		return mapError(err, "set account verified")
	}
	if len(rows) > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return auth.ErrAlreadyVerified
}

// SetPasswordHash implements auth.AccountRepository.
func (r *AccountRepository) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	rows, err := r.records.RawTx(ctx, r.db, setPasswordHashSQL, hash, r.now().UTC(), id.String())
	if err != nil {
		return mapError(err, "set password hash")
	}
	if len(rows) == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// RecordLogin implements auth.LoginRecorder.
func (r *AccountRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	loginAt := at.UTC()
	record := &auth.Account{
		ID:          id,
		LastLoginAt: &loginAt,
		LastLoginIP: ip,
	}

	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(id.String()),
		func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Column("last_login_at", "last_login_ip")
		},
	}

	_, err := r.records.UpdateTx(ctx, r.db, record, criteria...)
	if err != nil {
		return mapError(err, "record login")
	}
	return nil
}

func (r *AccountRepository) emailTaken(ctx context.Context, email string) bool {
	_, err := r.FindByEmail(ctx, email)
	return err == nil
}

func mapError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return auth.ErrNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
