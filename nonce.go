package auth

import (
	"crypto/rand"
	"encoding/base64"

	goerrors "github.com/goliatone/go-errors"
)

// NonceSize is the number of random bytes in a nonce
const NonceSize = 32

// NonceSource produces unguessable token nonces
type NonceSource func() (string, error)

// RandomNonce reads NonceSize bytes from crypto/rand
func RandomNonce() (string, error) {
	buf := make([]byte, NonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random nonce")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
