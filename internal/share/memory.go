package share

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.Mutex
	bySlug map[string]*Snapshot
	nextID uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySlug: make(map[string]*Snapshot)}
}

func (m *MemoryStore) Exists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bySlug[slug]
	return ok, nil
}

func (m *MemoryStore) Create(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySlug[s.Slug]; ok {
		return ErrSlugTaken
	}
	m.nextID++
	now := time.Now()
	s.ID = m.nextID
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.bySlug[s.Slug] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, slug string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySlug[slug]
	if !ok {
		return nil, notFound(slug)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) IncrementViews(_ context.Context, slug string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySlug[slug]
	if !ok || !s.Active {
		return nil, notFound(slug)
	}
	s.Views++
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Deactivate(_ context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySlug[slug]
	if !ok {
		return notFound(slug)
	}
	s.Active = false
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListActiveByOwner(_ context.Context, ownerID string, limit int) ([]Snapshot, error) {
	m.mu.Lock()
	out := []Snapshot{}
	for _, s := range m.bySlug {
		if s.Active && s.OwnerID != nil && *s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.bySlug {
		if s.Active && s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
			s.Active = false
			n++
		}
	}
	return n, nil
}
