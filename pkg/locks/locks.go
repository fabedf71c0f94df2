// Package locks serializes work that must not run concurrently for the same
// key, such as ingest batches belonging to one organization.
package locks

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a named resource. Acquire blocks until
// the lock is available or the context is done, and returns a release
// function that must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker. Each key gets its own mutex, created
// on first use and kept for the life of the process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewKeyedMutex creates a new KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]chan struct{}),
	}
}

// Acquire blocks until the key's lock is free, then takes it. The returned
// function releases the lock.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	m.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithLock runs fn while holding the key's lock.
func WithLock(ctx context.Context, locker Locker, key string, fn func() error) error {
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}
