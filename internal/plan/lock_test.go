package plan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"caseshare.org/internal/cases"
)

func TestAcquireIsExclusivePerCase(t *testing.T) {
	l := NewCaseLocks(time.Second)
	ctx := context.Background()

	var inside int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "c1")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > 1 {
				t.Error("two holders inside the same case lock")
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
}

func TestAcquireDifferentCasesDoNotBlock(t *testing.T) {
	l := NewCaseLocks(100 * time.Millisecond)
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	r2, err := l.Acquire(ctx, "c2")
	if err != nil {
		t.Fatalf("unrelated case blocked: %v", err)
	}
	r2()
}

func TestAcquireTimeout(t *testing.T) {
	l := NewCaseLocks(30 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := l.Acquire(ctx, "c1"); !errors.Is(err, cases.ErrRetryable) {
		t.Fatalf("expected ErrRetryable on timeout, got %v", err)
	}
}

func TestAcquireCancelledContext(t *testing.T) {
	l := NewCaseLocks(time.Second)
	release, err := l.Acquire(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "c1"); !errors.Is(err, cases.ErrRetryable) {
		t.Fatalf("expected ErrRetryable on cancellation, got %v", err)
	}
}

func TestLockMapShrinks(t *testing.T) {
	l := NewCaseLocks(time.Second)
	release, _ := l.Acquire(context.Background(), "c1")
	release()

	l.mu.Lock()
	n := len(l.locks)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("lock map holds %d entries after release, want 0", n)
	}
}
