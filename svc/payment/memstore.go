package payment

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.Mutex
	txs    map[int64]*Transaction
	nextID int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: make(map[int64]*Transaction), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.txs {
		if existing.Gateway == t.Gateway && existing.ExternalID == t.ExternalID {
			return ErrDuplicateExternalID
		}
	}
	m.nextID++
	now := m.now().UTC()
	t.ID = m.nextID
	t.CreatedAt = now
	t.UpdatedAt = now
	m.txs[t.ID] = clone(t)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

func (m *MemoryStore) GetByExternalID(_ context.Context, gateway, externalID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.Gateway == gateway && t.ExternalID == externalID {
			return clone(t), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Transition(_ context.Context, id int64, to Status, paidAt *time.Time, metadata map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != StatusPending {
		return false, nil
	}
	t.Status = to
	if paidAt != nil {
		p := *paidAt
		t.PaidAt = &p
	}
	if len(metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(t.Metadata, metadata)
	}
	t.UpdatedAt = m.now().UTC()
	return true, nil
}

func (m *MemoryStore) ListStalePending(_ context.Context, now time.Time, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, t := range m.txs {
		if t.Status == StatusPending && t.ExpiredAt.Before(now) {
			out = append(out, *clone(t))
		}
	}
	slices.SortFunc(out, func(a, b Transaction) int { return a.ExpiredAt.Compare(b.ExpiredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(t *Transaction) *Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	if t.PaidAt != nil {
		p := *t.PaidAt
		c.PaidAt = &p
	}
	return &c
}
