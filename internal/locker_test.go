package internal

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingenico/services"
)

func exerciseLocker(t *testing.T, locker services.Locker) {
	key := "payment:" + t.Name()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			current := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxInside)
				if current <= seen || atomic.CompareAndSwapInt32(&maxInside, seen, current) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	exerciseLocker(t, NewLocalLocker())
}

func TestLocalLockerCancelWhileHeld(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "payment:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "payment:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(context.Background(), "payment:2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.Empty(t, locker.entries)

	again, err := locker.Lock(context.Background(), "payment:1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	locker, err := NewRedisLocker(context.Background(), addr, "", 0, 5*time.Second)
	require.NoError(t, err)
	defer func() {
		_ = locker.Close()
	}()
	locker.retry = 5 * time.Millisecond

	exerciseLocker(t, locker)

	unlock, err := locker.Lock(context.Background(), "payment:held")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "payment:held")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	unlock()
}
