package auction

import (
	"context"
	"sync"
	"time"
)

// LockTable provides per-key mutual exclusion with a bounded wait.
// Bids and settlement on the same auction share one table so the two
// cannot interleave at the expiry boundary.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockTable returns an empty LockTable.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]chan struct{})}
}

func (t *LockTable) get(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[key] = ch
	}
	return ch
}

// Acquire takes the lock for key, waiting at most timeout. It returns a
// release function on success and ErrConcurrentModification when the
// lock could not be acquired in time.
func (t *LockTable) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	ch := t.get(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrConcurrentModification
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
