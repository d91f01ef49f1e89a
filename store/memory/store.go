// Package memory is an in-process TokenStore: a sharded map with lazy
// expiry on read and an optional reaper goroutine.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
)

const (
	DefaultShards       = 16
	DefaultReapInterval = time.Minute
)

type entry struct {
	subject   string
	expiresAt time.Time
}

type shard struct {
	mu    sync.Mutex
	items map[string]entry
}

// Store implements auth.TokenStore in memory
type Store struct {
	shards   []*shard
	now      func() time.Time
	interval time.Duration

	// subject -> keys; always locked after a shard lock, never before
	indexMu sync.Mutex
	index   map[string]map[string]struct{}

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ auth.TokenStore = (*Store)(nil)

// Option customizes a Store
type Option func(*Store)

// WithShards sets the number of shards
func WithShards(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

// WithClock injects the clock used for expiry
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReapInterval sets how often expired entries are swept.
// Zero disables the reaper and relies on lazy expiry alone.
func WithReapInterval(d time.Duration) Option {
	return func(s *Store) {
		s.interval = d
	}
}

// New creates a Store and starts its reaper
func New(opts ...Option) *Store {
	s := &Store{
		shards:   make([]*shard, DefaultShards),
		now:      time.Now,
		interval: DefaultReapInterval,
		index:    make(map[string]map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]entry)}
	}

	if s.interval > 0 {
		go s.reap()
	} else {
		close(s.done)
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Put stores key for ttl. A live key is never overwritten.
func (s *Store) Put(ctx context.Context, key, subject string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || ttl <= 0 {
		return auth.ErrInvalidInput
	}

	sh := s.shardFor(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.items[key]; ok {
		if now.Before(existing.expiresAt) {
			return auth.ErrDuplicateKey
		}
		s.indexRemove(existing.subject, key)
	}
	sh.items[key] = entry{subject: subject, expiresAt: now.Add(ttl)}
	s.indexAdd(subject, key)
	return nil
}

// Consume deletes key and returns its subject. Concurrent callers with
// the same key race on the shard lock; exactly one wins.
func (s *Store) Consume(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sh := s.shardFor(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[key]
	if !ok {
		return "", auth.ErrNotFound
	}
	delete(sh.items, key)
	s.indexRemove(e.subject, key)

	if !now.Before(e.expiresAt) {
		return "", auth.ErrNotFound
	}
	return e.subject, nil
}

// Revoke deletes key if present
func (s *Store) Revoke(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.items[key]; ok {
		delete(sh.items, key)
		s.indexRemove(e.subject, key)
	}
	return nil
}

// RevokeSubject deletes every key stored for subject and reports how
// many of them were still live.
func (s *Store) RevokeSubject(ctx context.Context, subject string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.indexMu.Lock()
	keys := s.index[subject]
	delete(s.index, subject)
	s.indexMu.Unlock()

	now := s.now()
	revoked := 0
	for key := range keys {
		sh := s.shardFor(key)
		sh.mu.Lock()
		if e, ok := sh.items[key]; ok && e.subject == subject {
			delete(sh.items, key)
			if now.Before(e.expiresAt) {
				revoked++
			}
		}
		sh.mu.Unlock()
	}
	return revoked, nil
}

// Len returns the number of stored entries, expired ones included
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes expired entries and returns how many were dropped
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.items {
			if !now.Before(e.expiresAt) {
				delete(sh.items, key)
				s.indexRemove(e.subject, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Close stops the reaper. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}

func (s *Store) reap() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) indexAdd(subject, key string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	keys, ok := s.index[subject]
	if !ok {
		keys = make(map[string]struct{})
		s.index[subject] = keys
	}
	keys[key] = struct{}{}
}

func (s *Store) indexRemove(subject, key string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	keys, ok := s.index[subject]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(s.index, subject)
	}
}
