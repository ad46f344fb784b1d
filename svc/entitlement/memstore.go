package entitlement

import (
	"context"
	"sync"

	"github.com/storify-asia/storify/svc/identity"
)

type memKey struct {
	user    bool
	subject string
	book    int64
}

type MemoryStore struct {
	mu     sync.Mutex
	events map[memKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[memKey]struct{})}
}

func (m *MemoryStore) Record(_ context.Context, id identity.Identity, bookID int64) error {
	k, ok := keyFor(id)
	if !ok {
		return ErrNoIdentity
	}
	k.book = bookID
	m.mu.Lock()
	m.events[k] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Count(_ context.Context, id identity.Identity) (int, error) {
	k, ok := keyFor(id)
	if !ok {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for e := range m.events {
		if e.user == k.user && e.subject == k.subject {
			n++
		}
	}
	return n, nil
}

// Len returns the total number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func keyFor(id identity.Identity) (memKey, bool) {
	switch id.Kind {
	case identity.KindUser:
		return memKey{user: true, subject: id.UserID}, true
	case identity.KindVisitor:
		return memKey{subject: id.VisitorID}, true
	default:
		return memKey{}, false
	}
}
