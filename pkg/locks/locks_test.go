package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := m.Acquire(ctx, "org-1")
			require.NoError(t, err)
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	releaseA, err := m.Acquire(ctx, "org-a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := m.Acquire(ctx, "org-b")
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancellation(t *testing.T) {
	m := NewKeyedMutex()

	release, err := m.Acquire(context.Background(), "org-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "org-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_ReleaseAllowsNextHolder(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "org-1")
	require.NoError(t, err)
	release()

	release, err = m.Acquire(ctx, "org-1")
	require.NoError(t, err)
	release()
}

func TestWithLock(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	ran := false
	err := WithLock(ctx, m, "org-1", func() error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)

	// lock was released by WithLock
	release, err := m.Acquire(ctx, "org-1")
	require.NoError(t, err)
	release()
}
