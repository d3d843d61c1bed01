package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"gorm.io/gorm"
)

// Store persists users. Lookups that miss return common.ErrNotFound.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByProviderID(ctx context.Context, providerID string) (*User, error)
	Create(ctx context.Context, u *User) error
	Save(ctx context.Context, u *User) error
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) find(ctx context.Context, field, value string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where(field+" = ?", value).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", value, common.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (*User, error) {
	return r.find(ctx, "id", id)
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.find(ctx, "email", email)
}

func (r *Repo) FindByProviderID(ctx context.Context, providerID string) (*User, error) {
	return r.find(ctx, "provider_id", providerID)
}

func (r *Repo) Create(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) Save(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Model(u).Select("name", "email", "provider_id").Updates(u).Error
}

type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (m *MemoryStore) match(pred func(*User) bool, key string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if pred(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", key, common.ErrNotFound)
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*User, error) {
	return m.match(func(u *User) bool { return u.ID == id }, id)
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	return m.match(func(u *User) bool { return u.Email == email }, email)
}

func (m *MemoryStore) FindByProviderID(_ context.Context, providerID string) (*User, error) {
	return m.match(func(u *User) bool { return u.ProviderID != nil && *u.ProviderID == providerID }, providerID)
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s already registered", u.Email)
		}
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) Save(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", u.ID, common.ErrNotFound)
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.ProviderID = u.ProviderID
	existing.UpdatedAt = time.Now()
	return nil
}
