package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesKey(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, FetchLockKey(1))
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := locker.Lock(ctx, FetchLockKey(1))
		if err == nil {
			close(acquired)
			release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	// Other keys are independent
	other, err := locker.Lock(ctx, FetchLockKey(2))
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock was not acquired after release")
	}
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPacer(t *testing.T) {
	pacer := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, pacer.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first wait is immediate")

	require.NoError(t, pacer.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	unpaced := NewPacer(0)
	start = time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, unpaced.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestFetchLockKey(t *testing.T) {
	assert.Equal(t, "wechat:fetch:42", FetchLockKey(42))
}

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	locker, err := NewRedisLocker(context.Background(), mr.Addr(), "", 0, ttl, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { locker.Close() })
	return locker, mr
}

func TestRedisLockerRenewsWhileHeld(t *testing.T) {
	const ttl = 300 * time.Millisecond
	locker, mr := newTestRedisLocker(t, ttl)
	key := FetchLockKey(1)

	unlock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	// Two thirds of the ttl pass without the holder releasing
	mr.FastForward(200 * time.Millisecond)
	require.True(t, mr.Exists(key))
	assert.Eventually(t, func() bool { return mr.TTL(key) > 200*time.Millisecond },
		time.Second, 20*time.Millisecond, "the held lock is renewed")

	mr.FastForward(200 * time.Millisecond)
	require.True(t, mr.Exists(key), "a renewed lock outlives its original ttl")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.False(t, mr.Exists(key))

	relock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)
	relock()
}

func TestRedisLockerStopsRenewingLostLock(t *testing.T) {
	locker, mr := newTestRedisLocker(t, 300*time.Millisecond)
	key := FetchLockKey(2)

	unlock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	require.NoError(t, mr.Set(key, "another-holder"))
	time.Sleep(250 * time.Millisecond)

	unlock()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "another-holder", got, "release never deletes a lock it no longer owns")
	assert.Zero(t, mr.TTL(key), "a lost lock is not renewed")
}
