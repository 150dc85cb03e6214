package guard

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	g := NewMemory()
	defer g.Close()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "10.0.0.1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, ErrBusy)

	other, err := g.Acquire(ctx, "10.0.0.2")
	require.NoError(t, err)
	other()

	release()
	again, err := g.Acquire(ctx, "10.0.0.1")
	require.NoError(t, err)
	again()
}

func TestMemoryGuardClosed(t *testing.T) {
	g := NewMemory()
	release, err := g.Acquire(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	g.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		release()
		_, err = g.Acquire(context.Background(), "10.0.0.2")
	}()
	select {
	case <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("guard blocked after Close")
	}
}

func TestMemoryGuardConcurrent(t *testing.T) {
	g := NewMemory()
	defer g.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var releases []func()
	busy := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), "same")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				busy++
				return
			}
			releases = append(releases, release)
		}()
	}
	wg.Wait()

	assert.Len(t, releases, 1)
	assert.Equal(t, 19, busy)
	releases[0]()
}

func TestMemoryGuardCancelled(t *testing.T) {
	g := NewMemory()
	g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	g := NewRedis(client, time.Minute)
	key := uuid.NewString()
	ctx := context.Background()

	release, err := g.Acquire(ctx, key)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, key)
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release, err = g.Acquire(ctx, key)
	require.NoError(t, err)
	release()
}
