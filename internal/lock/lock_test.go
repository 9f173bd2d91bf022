package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func assertMutualExclusion(t *testing.T, locker Locker, key string) {
	t.Helper()
	var inside, maxInside int32
	var mu sync.Mutex
	counter := 0

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			unlock, err := locker.Lock(context.Background(), key)
			if err != nil {
				return err
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			mu.Lock()
			if n > maxInside {
				maxInside = n
			}
			counter++
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 8, counter)
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	assertMutualExclusion(t, locker, "expiration_file")
	assert.Empty(t, locker.entries)
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Empty(t, locker.entries)
}

func TestRedisLockerTryLockAndRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Minute, nil)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "expiration_file")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"expiration_file"))

	_, ok, err = locker.TryLock(ctx, "expiration_file")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "expiration_file", "someone-else"))
	assert.True(t, mr.Exists(keyPrefix+"expiration_file"), "foreign token must not release")

	require.NoError(t, locker.Release(ctx, "expiration_file", token))
	assert.False(t, mr.Exists(keyPrefix+"expiration_file"))
}

func TestRedisLockerExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, nil)

	_, ok, err := locker.TryLock(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Minute, nil)
	locker.retryDelay = time.Millisecond
	assertMutualExclusion(t, locker, "expiration_file")
}

func TestRedisLockerNotConfigured(t *testing.T) {
	var locker *RedisLocker
	_, _, err := locker.TryLock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, NewRedisLocker(nil, 0, nil))
}

func TestChainReleasesOnFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	local := NewLocalLocker()
	redisLocker := NewRedisLocker(client, time.Minute, nil)
	locker := Chain(nil, local, redisLocker)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"k"))
	unlock()
	assert.False(t, mr.Exists(keyPrefix+"k"))
	assert.Empty(t, local.entries)

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.Error(t, err)
	assert.Empty(t, local.entries, "local section released after redis failure")
}
