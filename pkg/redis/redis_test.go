package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/orders"
	"github.com/Ramsey-B/fern/pkg/store"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})), mr
}

func TestStore_SetWithTTL(t *testing.T) {
	client, mr := newTestClient(t)
	s := NewStore(client, "softone:")
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "client_id", []byte(`{"client_id":"abc"}`), 90*time.Second))
	assert.True(t, mr.Exists("softone:client_id"))
	assert.Equal(t, 90*time.Second, mr.TTL("softone:client_id"))

	got, err := s.Get(ctx, "client_id")
	require.NoError(t, err)
	assert.JSONEq(t, `{"client_id":"abc"}`, string(got))

	mr.FastForward(91 * time.Second)
	_, err = s.Get(ctx, "client_id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SetIsDurable(t *testing.T) {
	client, mr := newTestClient(t)
	s := NewStore(client, "")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "last_run", []byte("1700000000")))
	assert.Zero(t, mr.TTL("last_run"))

	require.NoError(t, s.Delete(ctx, "last_run"))
	_, err := s.Get(ctx, "last_run")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "import", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "import", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Extend(ctx, 2*time.Minute))
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	_, err = locker.Acquire(ctx, "import", time.Minute)
	assert.NoError(t, err)
}

func TestLocker_WithLockReleasesOnError(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "lock:")
	ctx := context.Background()

	err := locker.WithLock(ctx, "sweep", time.Minute, func(context.Context, *Lock) error {
		assert.True(t, mr.Exists("lock:sweep"))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, mr.Exists("lock:sweep"))
}

func TestDeadLetterQueue(t *testing.T) {
	client, _ := newTestClient(t)
	dlq := NewDeadLetterQueue(client, "", ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	ctx := context.Background()

	first, err := dlq.Add(ctx, &orders.DeadLetter{OrderID: 41, Stage: "customer", Error: "no SoftOne mapping for country XX"})
	require.NoError(t, err)
	second, err := dlq.Add(ctx, &orders.DeadLetter{OrderID: 42, Stage: "transmit", Error: "Series is locked", Attempts: 3})
	require.NoError(t, err)

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, int64(42), entries[0].OrderID)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.Equal(t, first, entries[1].ID)
	assert.False(t, entries[1].CreatedAt.IsZero())

	entry, err := dlq.Get(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "customer", entry.Stage)

	require.NoError(t, dlq.Delete(ctx, first))
	entry, err = dlq.Get(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.ErrorIs(t, dlq.Delete(ctx, first), orders.ErrDeadLetterNotFound)
}
