// Package lock provides per-user mutual exclusion.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// entry is a one-token semaphore shared by everyone holding or waiting
// for the same user.
type entry struct {
	token chan struct{}
	refs  int
}

// UserLock serializes work per user id. Entries are dropped once nobody
// holds or waits for them, so the map stays proportional to active users.
type UserLock struct {
	mu    sync.Mutex
	users map[int64]*entry
}

// NewUserLock creates an empty UserLock.
func NewUserLock() *UserLock {
	return &UserLock{users: make(map[int64]*entry)}
}

func (ul *UserLock) acquireRef(userID int64) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e, ok := ul.users[userID]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		ul.users[userID] = e
	}
	e.refs++
	return e
}

func (ul *UserLock) dropRef(userID int64, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(ul.users, userID)
	}
}

// Lock blocks until the user's lock is held.
func (ul *UserLock) Lock(userID int64) {
	e := ul.acquireRef(userID)
	e.token <- struct{}{}
}

// LockContext is Lock that gives up when ctx is done.
func (ul *UserLock) LockContext(ctx context.Context, userID int64) error {
	e := ul.acquireRef(userID)
	select {
	case e.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.dropRef(userID, e)
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free right now.
func (ul *UserLock) TryLock(userID int64) bool {
	e := ul.acquireRef(userID)
	select {
	case e.token <- struct{}{}:
		return true
	default:
		ul.dropRef(userID, e)
		return false
	}
}

// Unlock releases the user's lock. It panics if the lock is not held.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	e, ok := ul.users[userID]
	ul.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked user")
	}

	select {
	case <-e.token:
	default:
		panic("lock: unlock of unlocked user")
	}
	ul.dropRef(userID, e)
}

// WithLock runs fn while holding the user's lock.
func (ul *UserLock) WithLock(userID int64, fn func() error) error {
	ul.Lock(userID)
	defer ul.Unlock(userID)
	return fn()
}

// WithLockTimeout runs fn while holding the user's lock, waiting at most
// timeout for it.
func (ul *UserLock) WithLockTimeout(ctx context.Context, userID int64, timeout time.Duration, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ul.LockContext(lockCtx, userID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrLockTimeout
		}
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// IsLocked reports whether someone holds the user's lock. The answer may
// be stale by the time it is used.
func (ul *UserLock) IsLocked(userID int64) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	e, ok := ul.users[userID]
	return ok && len(e.token) == 1
}

// Active returns how many users currently have an entry.
func (ul *UserLock) Active() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.users)
}
