package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type verification struct {
	userID    string
	expiresAt time.Time
}

type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*User
	tokens map[string]verification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]*User{}, tokens: map[string]verification{}}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) SetVerification(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrUserNotFound
	}
	for h, v := range m.tokens {
		if v.userID == userID {
			delete(m.tokens, h)
		}
	}
	m.tokens[tokenHash] = verification{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Verify(_ context.Context, tokenHash string, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tokens[tokenHash]
	if !ok {
		return nil, ErrInvalidToken
	}
	if !now.Before(v.expiresAt) {
		return nil, ErrTokenExpired
	}
	delete(m.tokens, tokenHash)
	u := m.users[v.userID]
	u.EmailVerified = true
	u.UpdatedAt = now
	cp := *u
	return &cp, nil
}
