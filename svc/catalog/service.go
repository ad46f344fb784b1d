package catalog

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/objectstore"
)

const RecentlyPlayedLimit = 10

// SearchIndex is a full-text index over book documents keyed by book id.
type SearchIndex interface {
	Put(ctx context.Context, id string, doc any) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// AudioSigner turns an object key into a playable URL.
type AudioSigner interface {
	URL(ctx context.Context, key string) (string, error)
}

type Service struct {
	store  Store
	index  SearchIndex
	signer AudioSigner
	log    *slog.Logger
}

type Option func(*Service)

// WithSearchIndex makes List answer searches from the index. Without one,
// searches match titles in the store.
func WithSearchIndex(idx SearchIndex) Option {
	return func(s *Service) { s.index = idx }
}

func WithAudioSigner(sg AudioSigner) Option {
	return func(s *Service) { s.signer = sg }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService returns a catalog over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("catalog"))
	return s
}

const searchLimit = 50

// List returns a page of books. Searches go to the index when one is
// configured and fall back to the store if it fails.
func (s *Service) List(ctx context.Context, p ListParams) ([]Book, error) {
	if p.Search != "" && s.index != nil {
		books, err := s.search(ctx, p)
		if err == nil {
			return s.sign(ctx, books), nil
		}
		s.log.WarnContext(ctx, "search index unavailable, falling back to title match", logger.Error(err))
	}
	books, err := s.store.ListBooks(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.sign(ctx, books), nil
}

func (s *Service) search(ctx context.Context, p ListParams) ([]Book, error) {
	hits, err := s.index.Search(ctx, p.Search, searchLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if id, err := strconv.ParseInt(h, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	found, err := s.store.BooksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, b := range found {
		if p.matches(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Book, error) {
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	b.AudioURL = s.audioURL(ctx, b.AudioURL)
	return b, nil
}

// Create stores a book and indexes it. Indexing failures are logged; the
// book is still created.
func (s *Service) Create(ctx context.Context, nb NewBook) (*Book, error) {
	if err := nb.validate(); err != nil {
		return nil, err
	}
	b, err := s.store.CreateBook(ctx, nb)
	if err != nil {
		return nil, err
	}
	if err := s.indexBook(ctx, b); err != nil {
		s.log.WarnContext(ctx, "failed to index book", slog.Int64("book_id", b.ID), logger.Error(err))
	}
	return b, nil
}

// Reindex pushes every book into the search index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	books, err := s.store.ListBooks(ctx, ListParams{})
	if err != nil {
		return 0, err
	}
	for i := range books {
		if err := s.indexBook(ctx, &books[i]); err != nil {
			return i, err
		}
	}
	return len(books), nil
}

func (s *Service) indexBook(ctx context.Context, b *Book) error {
	if s.index == nil {
		return nil
	}
	return s.index.Put(ctx, strconv.FormatInt(b.ID, 10), map[string]any{
		"title":       b.Title,
		"author":      b.Author,
		"description": b.Description,
		"category":    b.Category,
	})
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.store.Categories(ctx)
}

func (s *Service) Favorites(ctx context.Context, userID string) ([]Book, error) {
	books, err := s.store.Favorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.sign(ctx, books), nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, userID string, bookID int64) (bool, error) {
	fav, err := s.store.IsFavorite(ctx, userID, bookID)
	if err != nil {
		return false, err
	}
	if fav {
		return false, s.store.RemoveFavorite(ctx, userID, bookID)
	}
	if err := s.store.AddFavorite(ctx, userID, bookID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) IsFavorite(ctx context.Context, userID string, bookID int64) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return s.store.IsFavorite(ctx, userID, bookID)
}

// Progress returns the saved position, or a zero Progress when there is none.
func (s *Service) Progress(ctx context.Context, userID string, bookID int64) (*Progress, error) {
	if userID == "" {
		return &Progress{BookID: bookID}, nil
	}
	p, err := s.store.Progress(ctx, userID, bookID)
	if errors.Is(err, ErrNotFound) {
		return &Progress{BookID: bookID}, nil
	}
	return p, err
}

func (s *Service) SaveProgress(ctx context.Context, userID string, p Progress) error {
	if math.IsNaN(p.Progress) || math.IsNaN(p.CurrentTime) || p.Progress < 0 || p.CurrentTime < 0 {
		return ErrInvalidInput
	}
	p.Progress = min(p.Progress, 100)
	return s.store.SaveProgress(ctx, userID, p)
}

// RecentlyPlayed returns the user's latest books with their saved position.
func (s *Service) RecentlyPlayed(ctx context.Context, userID string) ([]RecentBook, error) {
	recent, err := s.store.RecentlyPlayed(ctx, userID, RecentlyPlayedLimit)
	if err != nil {
		return nil, err
	}
	for i := range recent {
		recent[i].AudioURL = s.audioURL(ctx, recent[i].AudioURL)
	}
	return recent, nil
}

func (s *Service) sign(ctx context.Context, books []Book) []Book {
	for i := range books {
		books[i].AudioURL = s.audioURL(ctx, books[i].AudioURL)
	}
	return books
}

// audioURL presigns object keys. On failure the key is returned unchanged.
func (s *Service) audioURL(ctx context.Context, ref string) string {
	if s.signer == nil || !objectstore.IsObjectKey(ref) {
		return ref
	}
	u, err := s.signer.URL(ctx, ref)
	if err != nil {
		s.log.WarnContext(ctx, "failed to presign audio url", slog.String("key", ref), logger.Error(err))
		return ref
	}
	return u
}
