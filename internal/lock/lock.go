// Package lock serializes operations that share a key. Callers block until the
// key is free; there is no try-lock. The lock is always released when fn
// returns, including when it panics.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func AccountKey(accountNumber string) string {
	return "account:" + accountNumber
}

func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Local is an in-process Locker. Each key maps to a one-slot channel; entries
// are reference counted and dropped once no goroutine holds or waits on them.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := l.acquireRef(key)
	defer l.releaseRef(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("WithLock: %s: %w", key, ctx.Err())
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

func (l *Local) acquireRef(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseRef(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size is the number of live keys.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
