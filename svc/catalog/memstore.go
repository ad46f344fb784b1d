package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type favKey struct {
	user string
	book int64
}

type MemoryStore struct {
	mu        sync.RWMutex
	books     []Book
	favorites map[favKey]struct{}
	progress  map[favKey]Progress
	now       func() time.Time
}

func NewMemoryStore(books ...NewBook) *MemoryStore {
	m := &MemoryStore{
		favorites: map[favKey]struct{}{},
		progress:  map[favKey]Progress{},
		now:       time.Now,
	}
	for _, b := range books {
		_, _ = m.CreateBook(context.Background(), b)
	}
	return m
}

func (m *MemoryStore) ListBooks(_ context.Context, p ListParams) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(p.Search)
	out := []Book{}
	for i := len(m.books) - 1; i >= 0; i-- {
		b := m.books[i]
		if search != "" && !strings.Contains(strings.ToLower(b.Title), search) {
			continue
		}
		if p.matches(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) BooksByIDs(_ context.Context, ids []int64) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Book{}
	for _, id := range ids {
		if b, ok := m.find(id); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) find(id int64) (Book, bool) {
	if id < 1 || int(id) > len(m.books) {
		return Book{}, false
	}
	return m.books[id-1], true
}

func (m *MemoryStore) GetBook(_ context.Context, id int64) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) CreateBook(_ context.Context, nb NewBook) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Book{
		ID:          int64(len(m.books) + 1),
		Title:       nb.Title,
		Author:      nb.Author,
		Description: nb.Description,
		CoverURL:    nb.CoverURL,
		AudioURL:    nb.AudioURL,
		Duration:    nb.Duration,
		Category:    nb.Category,
		IsFeatured:  nb.IsFeatured,
	}
	m.books = append(m.books, b)
	return &b, nil
}

func (m *MemoryStore) Categories(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for _, b := range m.books {
		if !slices.Contains(out, b.Category) {
			out = append(out, b.Category)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) Favorites(_ context.Context, userID string) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Book{}
	for _, b := range m.books {
		if _, ok := m.favorites[favKey{userID, b.ID}]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) AddFavorite(_ context.Context, userID string, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.find(bookID); !ok {
		return ErrNotFound
	}
	m.favorites[favKey{userID, bookID}] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveFavorite(_ context.Context, userID string, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.favorites, favKey{userID, bookID})
	return nil
}

func (m *MemoryStore) IsFavorite(_ context.Context, userID string, bookID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.favorites[favKey{userID, bookID}]
	return ok, nil
}

func (m *MemoryStore) Progress(_ context.Context, userID string, bookID int64) (*Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[favKey{userID, bookID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) SaveProgress(_ context.Context, userID string, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.find(p.BookID); !ok {
		return ErrNotFound
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.progress[favKey{userID, p.BookID}] = p
	return nil
}

func (m *MemoryStore) RecentlyPlayed(_ context.Context, userID string, limit int) ([]RecentBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []Progress
	for k, p := range m.progress {
		if k.user == userID {
			entries = append(entries, p)
		}
	}
	slices.SortFunc(entries, func(a, b Progress) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := []RecentBook{}
	for _, p := range entries {
		b, _ := m.find(p.BookID)
		out = append(out, RecentBook{Book: b, Progress: p.Progress, CurrentTime: p.CurrentTime})
	}
	return out, nil
}
