// Package lock provides a FIFO mutual-exclusion lock whose waiters can give up
// through their context.
//
// Unlike sync.Mutex, a Lock grants ownership in arrival order on Release, so
// no newcomer can barge ahead of the queue.
package lock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock is a FIFO exclusive lock. The zero value is an unlocked Lock.
type Lock struct {
	once sync.Once
	sem  *semaphore.Weighted
}

func (l *Lock) weighted() *semaphore.Weighted {
	l.once.Do(func() { l.sem = semaphore.NewWeighted(1) })
	return l.sem
}

// Acquire blocks until the lock is held by the caller or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.weighted().Acquire(ctx, 1)
}

// Release hands the lock to the next waiter, or marks it free.
// Releasing a lock that is not held panics.
func (l *Lock) Release() {
	l.weighted().Release(1)
}

// Do runs f while holding the lock. The lock is released on every exit path
// of f, including a panic.
func (l *Lock) Do(ctx context.Context, f func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return f(ctx)
}
