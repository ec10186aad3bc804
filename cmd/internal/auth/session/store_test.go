package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksite/cmd/identity/ids"
)

var tokenSeq atomic.Int64

// storeFixture hands out records with unique ids and tokens. Times are
// truncated to milliseconds so every backend round-trips them exactly.
type storeFixture struct {
	t   *testing.T
	now time.Time
}

func newStoreFixture(t *testing.T) storeFixture {
	return storeFixture{t: t, now: time.Now().UTC().Truncate(time.Millisecond)}
}

func (f storeFixture) userID() string {
	f.t.Helper()
	id, err := ids.NewULID(f.now)
	require.NoError(f.t, err)
	return id
}

func (f storeFixture) record(userID string, ttl time.Duration) Record {
	f.t.Helper()
	id, err := ids.NewULID(f.now)
	require.NoError(f.t, err)
	return Record{
		ID:        id,
		UserID:    userID,
		Token:     fmt.Sprintf("refresh-%s-%d", id, tokenSeq.Add(1)),
		ExpiresAt: f.now.Add(ttl),
		CreatedAt: f.now,
	}
}

// runStoreConformance exercises the Store contract against newStore.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create then find", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		rec := f.record(f.userID(), time.Hour)
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.FindActiveByToken(ctx, rec.Token, f.now)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.UserID, got.UserID)
		assert.Empty(t, got.Token)
		assert.Len(t, got.TokenHash, 64)
		assert.NotEqual(t, rec.Token, got.TokenHash)
		assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", rec.ExpiresAt, got.ExpiresAt)
		assert.Nil(t, got.RevokedAt)
	})

	t.Run("unknown token", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		_, err := s.FindActiveByToken(ctx, "never-issued", f.now)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("duplicate token conflicts", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		rec := f.record(f.userID(), time.Hour)
		require.NoError(t, s.Create(ctx, rec))

		dup := f.record(rec.UserID, time.Hour)
		dup.Token = rec.Token
		assert.ErrorIs(t, s.Create(ctx, dup), ErrTokenConflict)
	})

	t.Run("expired is not active", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		rec := f.record(f.userID(), time.Minute)
		require.NoError(t, s.Create(ctx, rec))

		_, err := s.FindActiveByToken(ctx, rec.Token, rec.ExpiresAt)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("revoke is idempotent and sticky", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		rec := f.record(f.userID(), time.Hour)
		require.NoError(t, s.Create(ctx, rec))

		require.NoError(t, s.Revoke(ctx, rec.Token, f.now))
		require.NoError(t, s.Revoke(ctx, rec.Token, f.now.Add(time.Second)))
		require.NoError(t, s.Revoke(ctx, "never-issued", f.now))

		_, err := s.FindActiveByToken(ctx, rec.Token, f.now)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("revoke leaves other sessions alone", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		user := f.userID()
		a, b := f.record(user, time.Hour), f.record(user, time.Hour)
		require.NoError(t, s.Create(ctx, a))
		require.NoError(t, s.Create(ctx, b))

		require.NoError(t, s.Revoke(ctx, a.Token, f.now))
		_, err := s.FindActiveByToken(ctx, b.Token, f.now)
		assert.NoError(t, err)
	})

	t.Run("revoke all for user", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		user, other := f.userID(), f.userID()
		a, b, c := f.record(user, time.Hour), f.record(user, time.Hour), f.record(other, time.Hour)
		for _, r := range []Record{a, b, c} {
			require.NoError(t, s.Create(ctx, r))
		}
		require.NoError(t, s.Revoke(ctx, a.Token, f.now))

		n, err := s.RevokeAllForUser(ctx, user, f.now)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, err = s.FindActiveByToken(ctx, b.Token, f.now)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = s.FindActiveByToken(ctx, c.Token, f.now)
		assert.NoError(t, err)

		n, err = s.RevokeAllForUser(ctx, user, f.now)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("purge expired", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		user := f.userID()
		short, long := f.record(user, time.Minute), f.record(user, time.Hour)
		require.NoError(t, s.Create(ctx, short))
		require.NoError(t, s.Create(ctx, long))

		n, err := s.PurgeExpired(ctx, f.now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = s.FindActiveByToken(ctx, long.Token, f.now)
		assert.NoError(t, err)

		// A purged token can be stored again.
		again := f.record(user, time.Hour)
		again.Token = short.Token
		assert.NoError(t, s.Create(ctx, again))
	})

	t.Run("rotate", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		user := f.userID()
		old := f.record(user, time.Hour)
		require.NoError(t, s.Create(ctx, old))

		next := f.record(user, time.Hour)
		require.NoError(t, s.Rotate(ctx, old.Token, next, f.now))

		_, err := s.FindActiveByToken(ctx, old.Token, f.now)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		got, err := s.FindActiveByToken(ctx, next.Token, f.now)
		require.NoError(t, err)
		assert.Equal(t, next.ID, got.ID)

		again := f.record(user, time.Hour)
		assert.ErrorIs(t, s.Rotate(ctx, old.Token, again, f.now), ErrSessionNotFound)
		_, err = s.FindActiveByToken(ctx, again.Token, f.now)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		s := newStore(t)
		f := newStoreFixture(t)
		user := f.userID()
		old := f.record(user, time.Hour)
		require.NoError(t, s.Create(ctx, old))

		const racers = 8
		nexts := make([]Record, racers)
		for i := range nexts {
			nexts[i] = f.record(user, time.Hour)
		}

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(r Record) {
				defer wg.Done()
				if err := s.Rotate(ctx, old.Token, r, f.now); err == nil {
					wins.Add(1)
				}
			}(nexts[i])
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
	})
}
