package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/internal/infrastructure/cache"
)

func newTestLocker(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisFromClient(client, "test:", testLog)
}

func TestSenderQueuePreservesOrderPerKey(t *testing.T) {
	q := NewSenderQueue(context.Background(), 50*time.Millisecond, nil, 0, testLog)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, q.Submit("919999999999", func(context.Context) {
			if i%3 == 0 {
				time.Sleep(2 * time.Millisecond)
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, q.Close(context.Background()))

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestSenderQueueRunsKeysInParallel(t *testing.T) {
	q := NewSenderQueue(context.Background(), time.Second, nil, 0, testLog)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	for _, key := range []string{"a", "b"} {
		require.NoError(t, q.Submit(key, func(context.Context) {
			started.Done()
			<-release
		}))
	}

	waitCh := make(chan struct{})
	go func() {
		started.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs for different keys did not run concurrently")
	}
	assert.Equal(t, 2, q.ActiveKeys())

	close(release)
	require.NoError(t, q.Close(context.Background()))
}

func TestSenderQueueRetiresIdleLanes(t *testing.T) {
	q := NewSenderQueue(context.Background(), 20*time.Millisecond, nil, 0, testLog)

	var ran atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(key, func(context.Context) { ran.Add(1) }))
	}

	require.Eventually(t, func() bool { return q.ActiveKeys() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), ran.Load())

	// A retired key gets a fresh lane.
	require.NoError(t, q.Submit("a", func(context.Context) { ran.Add(1) }))
	require.Eventually(t, func() bool { return ran.Load() == 4 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Close(context.Background()))
}

func TestSenderQueueRejectsAfterClose(t *testing.T) {
	q := NewSenderQueue(context.Background(), time.Second, nil, 0, testLog)
	require.NoError(t, q.Close(context.Background()))
	assert.ErrorIs(t, q.Submit("a", func(context.Context) {}), ErrQueueClosed)
}

func TestSenderQueueSurvivesPanics(t *testing.T) {
	q := NewSenderQueue(context.Background(), time.Second, nil, 0, testLog)

	var after atomic.Bool
	require.NoError(t, q.Submit("a", func(context.Context) { panic("boom") }))
	require.NoError(t, q.Submit("a", func(context.Context) { after.Store(true) }))

	require.NoError(t, q.Close(context.Background()))
	assert.True(t, after.Load())
}

func TestSenderQueueHoldsDistributedLock(t *testing.T) {
	locker := newTestLocker(t)
	q := NewSenderQueue(context.Background(), time.Second, locker, time.Minute, testLog)

	lockKey := cache.SenderLockKey("919999999999")
	var heldDuringJob bool
	require.NoError(t, q.Submit("919999999999", func(ctx context.Context) {
		_, ok, err := locker.AcquireLock(ctx, lockKey, time.Minute)
		heldDuringJob = err == nil && !ok
	}))
	require.NoError(t, q.Close(context.Background()))

	assert.True(t, heldDuringJob, "the sender lock is held while the job runs")

	token, ok, err := locker.AcquireLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the sender lock is released after the job")
	_, _ = locker.ReleaseLock(context.Background(), lockKey, token)
}
