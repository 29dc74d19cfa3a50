package inflight

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryExclusive(t *testing.T) {
	t.Parallel()

	guard := NewMemory(time.Minute)
	release, err := guard.Acquire(context.Background(), "session-1")
	require.NoError(t, err)

	_, err = guard.Acquire(context.Background(), "session-1")
	require.ErrorIs(t, err, ErrBusy)

	other, err := guard.Acquire(context.Background(), "session-2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := guard.Acquire(context.Background(), "session-1")
	require.NoError(t, err)
	again()
}

func TestMemoryHoldExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := NewMemory(10 * time.Second)
	guard.now = func() time.Time { return now }

	stale, err := guard.Acquire(context.Background(), "session-1")
	require.NoError(t, err)

	now = now.Add(11 * time.Second)
	fresh, err := guard.Acquire(context.Background(), "session-1")
	require.NoError(t, err)

	// The lapsed holder must not release the new hold.
	stale()
	_, err = guard.Acquire(context.Background(), "session-1")
	require.ErrorIs(t, err, ErrBusy)
	fresh()
}

func TestMemoryConcurrentAcquire(t *testing.T) {
	t.Parallel()

	guard := NewMemory(time.Minute)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := guard.Acquire(context.Background(), "session-1"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, granted)
}

func TestMemoryCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory(0).Acquire(ctx, "session-1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("ADMIN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ADMIN_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	guard := NewRedis(client, "test:"+uuid.NewString()+":", 5*time.Second, nil)
	release, err := guard.Acquire(context.Background(), "session-1")
	require.NoError(t, err)

	_, err = guard.Acquire(context.Background(), "session-1")
	require.ErrorIs(t, err, ErrBusy)

	release()
	again, err := guard.Acquire(context.Background(), "session-1")
	require.NoError(t, err)
	again()
}
