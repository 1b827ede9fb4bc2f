package leaselock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

// fakeLocks mimics the app_locks statements without expiry.
type fakeLocks struct {
	mu      sync.Mutex
	holders map[string]string
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{holders: make(map[string]string)}
}

func (f *fakeLocks) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	switch sql {
	case tryAcquireSQL:
		if cur, ok := f.holders[key]; ok && cur != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return fakeRow{key: key}
	case renewSQL:
		if f.holders[key] != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: fmt.Errorf("unexpected query %q", sql)}
}

func (f *fakeLocks) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if sql == releaseSQL && f.holders[key] == token {
		delete(f.holders, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (f *fakeLocks) holder(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holders[key]
}

func (f *fakeLocks) steal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holders[key] = "someone-else"
}

func TestClientAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	db := newFakeLocks()
	c := New(db)

	lease, err := c.Acquire(ctx, "k", Options{TokenPrefix: "worker/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(lease.Token, "worker/") || db.holder("k") != lease.Token {
		t.Fatalf("unexpected token %q, holder %q", lease.Token, db.holder("k"))
	}

	if _, err := c.Acquire(ctx, "k", Options{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if lease.Context.Err() == nil {
		t.Fatal("expected lease context to be cancelled on release")
	}
	if db.holder("k") != "" {
		t.Fatal("expected row to be deleted")
	}

	again, err := c.Acquire(ctx, "k", Options{})
	if err != nil {
		t.Fatalf("expected released key to be free, got %v", err)
	}
	_ = again.Release(ctx)
}

func TestClientWaitsForRelease(t *testing.T) {
	db := newFakeLocks()
	c := New(db)

	first, err := c.Acquire(context.Background(), "k", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = first.Release(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second, err := c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond, WaitJitter: time.Millisecond})
	if err != nil {
		t.Fatalf("expected to acquire after release, got %v", err)
	}
	if db.holder("k") != second.Token {
		t.Fatal("expected waiting lease to own the row")
	}
	_ = second.Release(context.Background())
}

func TestClientWaitHonoursContext(t *testing.T) {
	c := New(newFakeLocks())
	held, err := c.Acquire(context.Background(), "k", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLeaseLostCancelsContext(t *testing.T) {
	db := newFakeLocks()
	lease, err := New(db).Acquire(context.Background(), "k", Options{TTL: time.Minute, RenewEvery: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer lease.Release(context.Background())

	db.steal("k")

	select {
	case <-lease.Context.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected lease context to be cancelled")
	}
	if cause := context.Cause(lease.Context); !errors.Is(cause, ErrLost) {
		t.Fatalf("expected ErrLost cause, got %v", cause)
	}
}

func TestClientWithLease(t *testing.T) {
	db := newFakeLocks()
	c := New(db)
	boom := errors.New("boom")

	err := c.WithLease(context.Background(), RelationshipKey(3), Options{}, func(ctx context.Context) error {
		if db.holder(RelationshipKey(3)) == "" {
			t.Fatal("expected lease to be held inside fn")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if db.holder(RelationshipKey(3)) != "" {
		t.Fatal("expected lease to be released after fn")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.TTL != 5*time.Minute || o.RenewEvery != 150*time.Second || o.WaitInterval != 250*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", o)
	}

	o = Options{TTL: time.Second, RenewEvery: 2 * time.Second, WaitJitter: -time.Second}.withDefaults()
	if o.RenewEvery != time.Second || o.WaitJitter != 0 {
		t.Fatalf("unexpected clamped options %+v", o)
	}
}
