package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinHashCost is the lowest bcrypt cost accepted by NewHasher
const MinHashCost = bcrypt.DefaultCost

// Hasher hashes and verifies passwords with bcrypt
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher using cost, or the build default when
// cost is outside bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < MinHashCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &Hasher{cost: cost}
}

// Cost returns the bcrypt cost in use
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash generates a salted bcrypt hash of password
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidInput
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrInvalidInput
		}
		return "", WrapKind(ErrInvalidInput, err, "hash password")
	}
	return string(out), nil
}

// Verify compares password against hash. A mismatch is (false, nil);
// only a stored hash bcrypt cannot parse is reported as an error.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, WrapKind(ErrCorruptCredentialRecord, err, "compare password")
}

// VerifyDummy runs a comparison against a throwaway hash, used on
// login when no account matches the email.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
