package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
)

// User is the stored form of an identity, including its password hash.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash []byte
	CreatedAt    time.Time
}

func (u User) Owner() core.Owner {
	return core.Owner{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

// UserStore persists users. Lookups that miss return core.ErrNotFound and a
// duplicate email on create returns core.ErrAlreadyExists.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UpdateDisplayName(ctx context.Context, id, name string) error
}

type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: make(map[string]User), byEmail: make(map[string]string)}
}

func (m *MemoryUsers) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return fmt.Errorf("create user %s: %w", u.Email, core.ErrAlreadyExists)
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryUsers) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return User{}, core.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryUsers) UserByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, core.ErrNotFound
	}
	return u, nil
}

func (m *MemoryUsers) UpdateDisplayName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("update display name %s: %w", id, core.ErrNotFound)
	}
	u.DisplayName = name
	m.byID[id] = u
	return nil
}
