// Package lock provides per-key locking for read-then-write sections.
// The raid service holds an attacker's key while it counts and inserts that
// attacker's raids.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// keyMutex is a one-slot channel used as a mutex so acquisition can select on
// a context. refs counts holders and waiters; the entry is dropped at zero.
type keyMutex struct {
	ch   chan struct{}
	refs int
}

// KeyedLock provides per-ID mutual exclusion. Entries exist only while
// someone holds or waits for them.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[int64]*keyMutex
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[int64]*keyMutex)}
}

func (l *KeyedLock) ref(id int64) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.entries[id]
	if !ok {
		m = &keyMutex{ch: make(chan struct{}, 1)}
		l.entries[id] = m
	}
	m.refs++
	return m
}

func (l *KeyedLock) unref(id int64, m *keyMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.entries, id)
	}
}

// Lock acquires the lock for id, blocking until it is free.
func (l *KeyedLock) Lock(id int64) {
	m := l.ref(id)
	m.ch <- struct{}{}
}

// Unlock releases the lock for id. Unlocking a free key is a no-op.
func (l *KeyedLock) Unlock(id int64) {
	l.mu.Lock()
	m, ok := l.entries[id]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-m.ch:
		l.unref(id, m)
	default:
	}
}

// TryLock acquires the lock without blocking.
func (l *KeyedLock) TryLock(id int64) bool {
	m := l.ref(id)
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		l.unref(id, m)
		return false
	}
}

// LockContext acquires the lock for id or returns the context error.
func (l *KeyedLock) LockContext(ctx context.Context, id int64) error {
	m := l.ref(id)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(id, m)
		return ctx.Err()
	}
}

// LockWithTimeout acquires the lock within timeout.
// Returns ErrLockTimeout when the timeout passes first.
func (l *KeyedLock) LockWithTimeout(ctx context.Context, id int64, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.LockContext(tctx, id); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockTimeout
	}
	return nil
}

// WithLock runs fn while holding the lock for id.
func (l *KeyedLock) WithLock(id int64, fn func() error) error {
	l.Lock(id)
	defer l.Unlock(id)
	return fn()
}

// WithLockContext runs fn while holding the lock for id, waiting at most timeout.
func (l *KeyedLock) WithLockContext(ctx context.Context, id int64, timeout time.Duration, fn func() error) error {
	if err := l.LockWithTimeout(ctx, id, timeout); err != nil {
		return err
	}
	defer l.Unlock(id)
	return fn()
}

// IsLocked reports whether id is currently held. Point-in-time only.
func (l *KeyedLock) IsLocked(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.entries[id]
	return ok && len(m.ch) == 1
}

// Len returns the number of keys currently held or waited on.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
