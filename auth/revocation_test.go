package auth

import (
	"context"
	"testing"
	"time"

	"github.com/adeilh/rakh-auth/cache/memory"
)

func TestMemoryRevocationListIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRevocationList()
	exp := time.Now().Add(time.Hour)

	for i := 0; i < 2; i++ {
		if err := l.Add(ctx, "tok", exp); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	ok, err := l.Contains(ctx, "tok")
	if err != nil || !ok {
		t.Fatalf("Contains = %v, %v", ok, err)
	}
	if n, _ := l.Count(ctx); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestMemoryRevocationListSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryRevocationList()
	l.SetNowFunc(func() time.Time { return now })

	_ = l.Add(ctx, "expired", now.Add(-time.Second))
	_ = l.Add(ctx, "boundary", now)
	_ = l.Add(ctx, "live", now.Add(time.Hour))
	_ = l.Add(ctx, "unknown-expiry", time.Time{})

	if removed := l.Sweep(); removed != 2 {
		t.Fatalf("Sweep removed %d, want 2", removed)
	}
	for raw, want := range map[string]bool{"expired": false, "boundary": false, "live": true, "unknown-expiry": true} {
		if got, _ := l.Contains(ctx, raw); got != want {
			t.Fatalf("Contains(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMemoryRevocationListRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewMemoryRevocationList().Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestCacheRevocationList(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	current := now
	store := memory.New(memory.WithClock(func() time.Time { return current }))
	l := NewCacheRevocationList(store, "")
	l.now = func() time.Time { return current }

	if err := l.Add(ctx, "tok", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Add(ctx, "tok", now.Add(time.Minute)); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if ok, err := l.Contains(ctx, "tok"); err != nil || !ok {
		t.Fatalf("Contains = %v, %v", ok, err)
	}
	if n, err := l.Count(ctx); err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	if ok, _ := l.Contains(ctx, "other"); ok {
		t.Fatalf("unexpected hit for unrevoked token")
	}
	if _, err := store.Get(ctx, l.key("tok")); err != nil {
		t.Fatalf("expected hashed key in store: %v", err)
	}

	current = now.Add(time.Minute)
	if ok, _ := l.Contains(ctx, "tok"); ok {
		t.Fatalf("entry should expire with the token")
	}

	if err := l.Add(ctx, "stale", now); err != nil {
		t.Fatalf("Add stale: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("already expired token should not be stored")
	}
}
