package auth_test

import (
	"strings"
	"testing"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasherHash(t *testing.T) {
	hasher := auth.NewHasher(auth.MinHashCost)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid password", password: "securePassword123!"},
		{name: "unicode password", password: "pässwörd-ünïcode"},
		{name: "empty password", password: "", wantErr: true},
		{name: "longer than 72 bytes", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)
			if tt.wantErr {
				assertKind(t, err, auth.TextCodeInvalidInput)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)

			ok, err := hasher.Verify(tt.password, hash)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestHasherSaltsEveryHash(t *testing.T) {
	hasher := auth.NewHasher(auth.MinHashCost)

	first, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	second, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHasherVerify(t *testing.T) {
	hasher := auth.NewHasher(auth.MinHashCost)
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	t.Run("mismatch is not an error", func(t *testing.T) {
		ok, err := hasher.Verify("wrong password", hash)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty candidate is a mismatch", func(t *testing.T) {
		ok, err := hasher.Verify("", hash)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unparsable hash is corrupt", func(t *testing.T) {
		ok, err := hasher.Verify(testPassword, "not-a-bcrypt-hash")
		assert.False(t, ok)
		assertKind(t, err, auth.TextCodeCorruptCredentialRecord)
	})
}

func TestNewHasherCost(t *testing.T) {
	assert.Equal(t, 11, auth.NewHasher(11).Cost())

	fallback := auth.NewHasher(bcrypt.MinCost).Cost()
	assert.GreaterOrEqual(t, fallback, auth.MinHashCost)
	assert.Equal(t, fallback, auth.NewHasher(bcrypt.MaxCost+1).Cost())
}

func TestHasherVerifyDummyDoesNotPanic(t *testing.T) {
	hasher := auth.NewHasher(auth.MinHashCost)
	assert.NotPanics(t, func() {
		hasher.VerifyDummy("anything")
		hasher.VerifyDummy("")
	})
}
