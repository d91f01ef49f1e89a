package auth

import (
	"context"
	"strings"
	"time"
)

// kindStore scopes a TokenStore to one token kind. Keys and subjects are
// both prefixed so RevokeSubject only reaches nonces of that kind.
type kindStore struct {
	store TokenStore
	kind  TokenKind
}

func newKindStore(store TokenStore, kind TokenKind) kindStore {
	return kindStore{store: store, kind: kind}
}

func (s kindStore) prefix(v string) string {
	return s.kind.Namespace() + ":" + v
}

func (s kindStore) put(ctx context.Context, nonce, subject string, ttl time.Duration) error {
	err := s.store.Put(ctx, s.prefix(nonce), s.prefix(subject), ttl)
	if err == nil || IsKind(err, TextCodeDuplicateKey) {
		return err
	}
	return storeFailure(err, "put "+s.kind.Namespace()+" nonce")
}

// consume returns the unprefixed subject, or ErrNotFound.
func (s kindStore) consume(ctx context.Context, nonce string) (string, error) {
	subject, err := s.store.Consume(ctx, s.prefix(nonce))
	if err != nil {
		if IsKind(err, TextCodeNotFound) {
			return "", ErrNotFound
		}
		return "", storeFailure(err, "consume "+s.kind.Namespace()+" nonce")
	}
	ns := s.kind.Namespace() + ":"
	if !strings.HasPrefix(subject, ns) {
		return "", ErrNotFound
	}
	return strings.TrimPrefix(subject, ns), nil
}

func (s kindStore) revoke(ctx context.Context, nonce string) error {
	if err := s.store.Revoke(ctx, s.prefix(nonce)); err != nil && !IsKind(err, TextCodeNotFound) {
		return storeFailure(err, "revoke "+s.kind.Namespace()+" nonce")
	}
	return nil
}

func (s kindStore) revokeSubject(ctx context.Context, subject string) (int, error) {
	n, err := s.store.RevokeSubject(ctx, s.prefix(subject))
	if err != nil {
		return n, storeFailure(err, "revoke "+s.kind.Namespace()+" subject")
	}
	return n, nil
}
