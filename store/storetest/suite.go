// Package storetest holds the behavior every auth.TokenStore adapter
// must share. Adapter packages run it from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh store and a function moving its clock forward
type Factory func(t *testing.T) (store auth.TokenStore, advance func(time.Duration))

// Run runs the shared contract against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("put then consume once", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "n1", "account-1", time.Minute))

		subject, err := store.Consume(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, "account-1", subject)

		_, err = store.Consume(ctx, "n1")
		assert.True(t, auth.IsKind(err, auth.TextCodeNotFound), "got %v", err)
	})

	t.Run("unknown key", func(t *testing.T) {
		store, _ := newStore(t)
		_, err := store.Consume(context.Background(), "missing")
		assert.True(t, auth.IsKind(err, auth.TextCodeNotFound), "got %v", err)
	})

	t.Run("live key is never overwritten", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "n1", "account-1", time.Minute))
		err := store.Put(ctx, "n1", "account-2", time.Minute)
		assert.True(t, auth.IsKind(err, auth.TextCodeDuplicateKey), "got %v", err)

		subject, err := store.Consume(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, "account-1", subject)
	})

	t.Run("expired key is not returned", func(t *testing.T) {
		store, advance := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "n1", "account-1", time.Minute))
		advance(time.Minute + time.Second)

		_, err := store.Consume(ctx, "n1")
		assert.True(t, auth.IsKind(err, auth.TextCodeNotFound), "got %v", err)

		require.NoError(t, store.Put(ctx, "n1", "account-2", time.Minute), "expired keys may be reused")
	})

	t.Run("revoke", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "n1", "account-1", time.Minute))
		require.NoError(t, store.Revoke(ctx, "n1"))
		require.NoError(t, store.Revoke(ctx, "n1"))

		_, err := store.Consume(ctx, "n1")
		assert.True(t, auth.IsKind(err, auth.TextCodeNotFound), "got %v", err)
	})

	t.Run("revoke subject", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "a1", "account-1", time.Minute))
		require.NoError(t, store.Put(ctx, "a2", "account-1", time.Hour))
		require.NoError(t, store.Put(ctx, "b1", "account-2", time.Minute))

		n, err := store.RevokeSubject(ctx, "account-1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		for _, key := range []string{"a1", "a2"} {
			_, err := store.Consume(ctx, key)
			assert.True(t, auth.IsKind(err, auth.TextCodeNotFound), "key %s: %v", key, err)
		}

		subject, err := store.Consume(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, "account-2", subject)

		n, err = store.RevokeSubject(ctx, "account-1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("consumed keys leave the subject index", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "a1", "account-1", time.Minute))
		require.NoError(t, store.Put(ctx, "a2", "account-1", time.Minute))
		_, err := store.Consume(ctx, "a1")
		require.NoError(t, err)

		n, err := store.RevokeSubject(ctx, "account-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		for i := 0; i < 20; i++ {
			require.NoError(t, store.Put(ctx, fmt.Sprintf("k%d", i), "account-1", time.Minute))
		}

		const callers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins = map[string]int{}
		)
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					key := fmt.Sprintf("k%d", i)
					if _, err := store.Consume(ctx, key); err == nil {
						mu.Lock()
						wins[key]++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		require.Len(t, wins, 20)
		for key, n := range wins {
			assert.Equal(t, 1, n, "key %s consumed %d times", key, n)
		}
	})

	t.Run("rejects empty key and non-positive ttl", func(t *testing.T) {
		store, _ := newStore(t)
		ctx := context.Background()

		assert.True(t, auth.IsKind(store.Put(ctx, "", "account-1", time.Minute), auth.TextCodeInvalidInput))
		assert.True(t, auth.IsKind(store.Put(ctx, "n1", "account-1", 0), auth.TextCodeInvalidInput))
	})
}
