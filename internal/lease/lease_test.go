package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, 5*time.Second), mr
}

func TestAcquireAndRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "summaries:42")
	require.NoError(t, err)
	require.True(t, ok)

	// Second acquire must fail while held.
	_, ok, err = locker.Acquire(ctx, "summaries:42")
	require.NoError(t, err)
	require.False(t, ok)

	release()

	_, ok, err = locker.Acquire(ctx, "summaries:42")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireIndependentKeys(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.Acquire(ctx, "summaries:1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, "summaries:2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.Acquire(ctx, "summaries:7")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	_, ok, err = locker.Acquire(ctx, "summaries:7")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireWaitTimesOut(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.Acquire(ctx, "summaries:9")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = locker.AcquireWait(ctx, "summaries:9", 300*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
