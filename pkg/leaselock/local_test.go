package leaselock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalWithLease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	key := RelationshipKey(4)

	if key != "tag_relationship:4" {
		t.Fatalf("unexpected key %q", key)
	}

	err := l.WithLease(ctx, key, Options{}, func(ctx context.Context) error {
		if err := l.WithLease(ctx, key, Options{}, func(context.Context) error { return nil }); !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy for held key, got %v", err)
		}
		return l.WithLease(ctx, RelationshipKey(5), Options{}, func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	called := false
	if err := l.WithLease(ctx, key, Options{}, func(context.Context) error { called = true; return nil }); err != nil {
		t.Fatalf("expected released key to be free, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to run")
	}
}

func TestLocalWithLeaseReturnsFnError(t *testing.T) {
	want := errors.New("boom")
	err := NewLocal().WithLease(context.Background(), "k", Options{}, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestLocalWaitHonoursContext(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.WithLease(context.Background(), "k", Options{}, func(context.Context) error {
		return l.WithLease(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond}, func(context.Context) error { return nil })
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLocalRejectsEmptyKey(t *testing.T) {
	if err := NewLocal().WithLease(context.Background(), "", Options{}, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty key")
	}
}
