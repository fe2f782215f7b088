package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryPrincipalStore keeps principals in a mutex-guarded map.
type MemoryPrincipalStore struct {
	mu         sync.RWMutex
	principals map[string]Principal
	now        func() time.Time
}

func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		principals: make(map[string]Principal),
		now:        time.Now,
	}
}

func (s *MemoryPrincipalStore) Create(ctx context.Context, p Principal) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if p.Identifier == "" {
		return ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.principals[p.Identifier]; exists {
		return ErrConflict
	}
	s.principals[p.Identifier] = clonePrincipal(p)
	return nil
}

func (s *MemoryPrincipalStore) Get(ctx context.Context, identifier string) (Principal, error) {
	if err := contextError(ctx); err != nil {
		return Principal{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[identifier]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

// List returns every principal ordered by identifier.
func (s *MemoryPrincipalStore) List(ctx context.Context) ([]Principal, error) {
	if err := contextError(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, clonePrincipal(p))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (s *MemoryPrincipalStore) SetEnabled(ctx context.Context, identifier string, enabled bool) (Principal, error) {
	if err := contextError(ctx); err != nil {
		return Principal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[identifier]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	p.Enabled = enabled
	p.UpdatedAt = s.now()
	s.principals[identifier] = p
	return clonePrincipal(p), nil
}

func clonePrincipal(p Principal) Principal {
	out := p
	out.Roles = cloneStrings(p.Roles)
	out.SecretDigest.Value = append([]byte(nil), p.SecretDigest.Value...)
	return out
}
