package plan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caseshare.org/internal/cases"
	"caseshare.org/internal/obs"
)

// CaseLocks serializes plan mutations per case. Unrelated cases proceed
// fully concurrently; two operations on the same case never interleave.
// Acquisition waits at most the configured bound and then surfaces
// cases.ErrRetryable.
type CaseLocks struct {
	mu    sync.Mutex
	locks map[string]*caseLock
	wait  time.Duration
}

type caseLock struct {
	ch   chan struct{} // one-token semaphore
	refs int
}

// NewCaseLocks creates a lock manager with the given maximum wait.
func NewCaseLocks(maxWait time.Duration) *CaseLocks {
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	return &CaseLocks{locks: make(map[string]*caseLock), wait: maxWait}
}

// Acquire takes the exclusive lock for caseID. The returned release
// function must be called exactly once. Exceeding the wait bound or a
// cancelled context returns cases.ErrRetryable.
func (l *CaseLocks) Acquire(ctx context.Context, caseID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[caseID]
	if !ok {
		entry = &caseLock{ch: make(chan struct{}, 1)}
		l.locks[caseID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	start := time.Now()

	select {
	case entry.ch <- struct{}{}:
		obs.ObserveLockWait(time.Since(start))
		return func() {
			<-entry.ch
			l.release(caseID, entry)
		}, nil
	case <-timer.C:
		l.release(caseID, entry)
		return nil, fmt.Errorf("%w: lock wait for case %s exceeded %s", cases.ErrRetryable, caseID, l.wait)
	case <-ctx.Done():
		l.release(caseID, entry)
		return nil, fmt.Errorf("%w: %v", cases.ErrRetryable, ctx.Err())
	}
}

func (l *CaseLocks) release(caseID string, entry *caseLock) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, caseID)
	}
	l.mu.Unlock()
}
