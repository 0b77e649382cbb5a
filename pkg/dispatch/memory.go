package dispatch

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded ActionStore and Claimer.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*Action
}

var (
	_ ActionStore = (*MemoryStore)(nil)
	_ Claimer     = (*MemoryStore)(nil)
)

func NewMemoryStore(seed ...*Action) *MemoryStore {
	s := &MemoryStore{actions: make(map[string]*Action)}
	for _, a := range seed {
		s.actions[a.ID] = a.Clone()
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, a *Action) error {
	if a == nil || strings.TrimSpace(a.ID) == "" {
		return ErrInvalidAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actions[a.ID]; ok {
		return ErrActionExists
	}
	c := a.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.actions[a.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListActive(ctx context.Context, from, to time.Time) ([]*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Action
	for _, a := range s.actions {
		if a.Active && !a.StartsAt.Before(from) && !a.StartsAt.After(to) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Action) int { return a.StartsAt.Compare(b.StartsAt) })
	return out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, actionID string, flag Flag) (bool, error) {
	if !flag.Valid() {
		return false, ErrInvalidFlag
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[actionID]
	if !ok {
		return false, ErrActionNotFound
	}
	if a.Claims[flag] {
		return false, nil
	}
	if a.Claims == nil {
		a.Claims = make(map[Flag]bool)
	}
	a.Claims[flag] = true
	return true, nil
}

func (s *MemoryStore) Revert(ctx context.Context, actionID string, flag Flag) error {
	if !flag.Valid() {
		return ErrInvalidFlag
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[actionID]
	if !ok {
		return ErrActionNotFound
	}
	if a.Claims == nil {
		a.Claims = make(map[Flag]bool)
	}
	a.Claims[flag] = false
	return nil
}
