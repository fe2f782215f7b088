package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/adeilh/rakh-auth/cache"
)

const defaultRevocationPrefix = "revoked"

// MemoryRevocationList is an in-process denylist. Entries with a known expiry
// are dropped by Sweep once the token could no longer verify anyway.
type MemoryRevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{entries: make(map[string]time.Time), now: time.Now}
}

// SetNowFunc allows injecting a deterministic clock (useful for tests).
func (l *MemoryRevocationList) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	l.mu.Lock()
	l.now = fn
	l.mu.Unlock()
}

func (l *MemoryRevocationList) Add(ctx context.Context, raw string, expiresAt time.Time) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[raw]; ok {
		return nil
	}
	l.entries[raw] = expiresAt
	return nil
}

func (l *MemoryRevocationList) Contains(ctx context.Context, raw string) (bool, error) {
	if err := contextError(ctx); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[raw]
	return ok, nil
}

func (l *MemoryRevocationList) Count(ctx context.Context) (int, error) {
	if err := contextError(ctx); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries), nil
}

// Sweep removes entries whose token expired at or before now and returns how many were dropped.
func (l *MemoryRevocationList) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := l.now()
	removed := 0
	for raw, exp := range l.entries {
		if exp.IsZero() || exp.After(at) {
			continue
		}
		delete(l.entries, raw)
		removed++
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (l *MemoryRevocationList) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// CacheRevocationList stores denylist entries in a cache.Store, keyed by the
// SHA-256 of the raw token and expiring together with the token.
type CacheRevocationList struct {
	store  cache.Store
	prefix string
	now    func() time.Time
}

func NewCacheRevocationList(store cache.Store, prefix string) *CacheRevocationList {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &CacheRevocationList{store: store, prefix: prefix, now: time.Now}
}

func (l *CacheRevocationList) Add(ctx context.Context, raw string, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(l.now())
		if ttl <= 0 {
			return nil
		}
	}
	return l.store.Set(ctx, l.key(raw), []byte(expiresAt.UTC().Format(time.RFC3339)), ttl)
}

func (l *CacheRevocationList) Contains(ctx context.Context, raw string) (bool, error) {
	_, err := l.store.Get(ctx, l.key(raw))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cache.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Count reports live entries, or -1 when the store cannot count keys.
func (l *CacheRevocationList) Count(ctx context.Context) (int, error) {
	counter, ok := l.store.(cache.Counter)
	if !ok {
		return -1, nil
	}
	return counter.CountPrefix(ctx, l.prefix+":")
}

func (l *CacheRevocationList) key(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return l.prefix + ":" + hex.EncodeToString(sum[:])
}
