package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileLock(t *testing.T) {
	l1 := New("http://localhost:8000/api/v1#test")
	ok, err := l1.TryLock()
	if err != nil || !ok {
		t.Fatalf("first lock failed")
	}
	defer func() { _ = l1.Unlock() }()

	l2 := New("HTTP://localhost:8000/api/v1#test/")
	ok, err = l2.TryLock()
	if err != nil {
		t.Fatalf("second lock error: %v", err)
	}
	if ok {
		t.Fatalf("lock should be held by first process")
	}
}

func TestFileLockDistinctKeys(t *testing.T) {
	a, b := New("http://a/api/v1"), New("http://b/api/v1")
	if a.Path() == b.Path() {
		t.Fatalf("distinct control planes share a lock file")
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	holder := New("http://acquire-wait/api/v1")
	if err := holder.Acquire(ctx, 0, 0); err != nil {
		t.Fatalf("holder: %v", err)
	}

	waiter := New("http://acquire-wait/api/v1")
	if err := waiter.Acquire(ctx, 0, 0); !errors.Is(err, ErrHeld) {
		t.Fatalf("single attempt: want ErrHeld, got %v", err)
	}
	if err := waiter.Acquire(ctx, 50*time.Millisecond, 10*time.Millisecond); !errors.Is(err, ErrHeld) {
		t.Fatalf("bounded wait: want ErrHeld, got %v", err)
	}

	time.AfterFunc(50*time.Millisecond, func() { _ = holder.Unlock() })
	if err := waiter.Acquire(ctx, 5*time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = waiter.Unlock()
}

func TestAcquireCancelled(t *testing.T) {
	holder := New("http://acquire-cancel/api/v1")
	if err := holder.Acquire(context.Background(), 0, 0); err != nil {
		t.Fatalf("holder: %v", err)
	}
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New("http://acquire-cancel/api/v1").Acquire(ctx, time.Second, 10*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
