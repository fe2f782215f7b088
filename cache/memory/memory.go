// Package memory is an in-process cache.Store with lazy and periodic expiry.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/adeilh/rakh-auth/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(at time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(at)
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Counter = (*Store)(nil)
)

type Option func(*Store)

// WithClock injects the time source used for expiry.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{items: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || e.expired(s.now()) {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = e
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len counts live keys.
func (s *Store) Len() int {
	at := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.items {
		if !e.expired(at) {
			n++
		}
	}
	return n
}

func (s *Store) CountPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	at := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k, e := range s.items {
		if strings.HasPrefix(k, prefix) && !e.expired(at) {
			n++
		}
	}
	return n, nil
}

// Sweep drops expired keys and reports how many were removed.
func (s *Store) Sweep() int {
	at := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.items {
		if e.expired(at) {
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
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
			s.Sweep()
		}
	}
}
