// Package redis is a TokenStore backed by Redis. Entries expire through
// native key TTLs; a per-subject set indexes keys for bulk revocation.
//
// The scripts touch token keys and subject indexes that hash to different
// slots, so only single-node deployments (or a sentinel failover client)
// are supported. Redis Cluster is not.
package redis

import (
	"context"
	"errors"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store
const DefaultPrefix = "auth:"

// putScript sets the token only if absent and extends the subject index
// so it outlives its longest member.
var putScript = redis.NewScript(`
	local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
	if not ok then
		return 0
	end
	redis.call('SADD', KEYS[2], ARGV[3])
	local ttl = redis.call('PTTL', KEYS[2])
	if ttl < tonumber(ARGV[2]) then
		redis.call('PEXPIRE', KEYS[2], ARGV[2])
	end
	return 1
`)

// revokeSubjectScript deletes every indexed key still bound to the subject.
var revokeSubjectScript = redis.NewScript(`
	local members = redis.call('SMEMBERS', KEYS[1])
	local n = 0
	for _, k in ipairs(members) do
		local key = ARGV[1] .. k
		if redis.call('GET', key) == ARGV[2] then
			redis.call('DEL', key)
			n = n + 1
		end
	end
	redis.call('DEL', KEYS[1])
	return n
`)

// Store implements auth.TokenStore on Redis
type Store struct {
	client *redis.Client
	prefix string
}

var _ auth.TokenStore = (*Store)(nil)

// Option customizes a Store
type Option func(*Store)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a Store using client
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) tokenKey(key string) string {
	return s.prefix + "token:" + key
}

func (s *Store) subjectKey(subject string) string {
	return s.prefix + "subject:" + subject
}

// Put stores key for ttl with SET NX, so a live key is never overwritten
func (s *Store) Put(ctx context.Context, key, subject string, ttl time.Duration) error {
	if key == "" || ttl <= 0 {
		return auth.ErrInvalidInput
	}

	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	res, err := putScript.Run(ctx, s.client,
		[]string{s.tokenKey(key), s.subjectKey(subject)},
		subject, ms, key,
	).Int()
	if err != nil {
		return auth.WrapKind(auth.ErrStoreUnavailable, err, "redis put")
	}
	if res == 0 {
		return auth.ErrDuplicateKey
	}
	return nil
}

// Consume reads and deletes key in a single GETDEL
func (s *Store) Consume(ctx context.Context, key string) (string, error) {
	subject, err := s.client.GetDel(ctx, s.tokenKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", auth.WrapKind(auth.ErrStoreUnavailable, err, "redis consume")
	}

	s.unindex(ctx, subject, key)
	return subject, nil
}

// Revoke deletes key if present
func (s *Store) Revoke(ctx context.Context, key string) error {
	subject, err := s.client.GetDel(ctx, s.tokenKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return auth.WrapKind(auth.ErrStoreUnavailable, err, "redis revoke")
	}

	s.unindex(ctx, subject, key)
	return nil
}

// RevokeSubject deletes every live key stored for subject
func (s *Store) RevokeSubject(ctx context.Context, subject string) (int, error) {
	n, err := revokeSubjectScript.Run(ctx, s.client,
		[]string{s.subjectKey(subject)},
		s.prefix+"token:", subject,
	).Int()
	if err != nil {
		return 0, auth.WrapKind(auth.ErrStoreUnavailable, err, "redis revoke subject")
	}
	return n, nil
}

// Close releases the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// unindex drops key from the subject set. A stale member is harmless:
// RevokeSubject checks ownership before deleting.
func (s *Store) unindex(ctx context.Context, subject, key string) {
	_ = s.client.SRem(ctx, s.subjectKey(subject), key).Err()
}
