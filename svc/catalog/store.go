package catalog

import "context"

type Store interface {
	ListBooks(ctx context.Context, p ListParams) ([]Book, error)
	// BooksByIDs returns the books that exist, in the order of ids.
	BooksByIDs(ctx context.Context, ids []int64) ([]Book, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	CreateBook(ctx context.Context, b NewBook) (*Book, error)
	Categories(ctx context.Context) ([]string, error)

	Favorites(ctx context.Context, userID string) ([]Book, error)
	AddFavorite(ctx context.Context, userID string, bookID int64) error
	RemoveFavorite(ctx context.Context, userID string, bookID int64) error
	IsFavorite(ctx context.Context, userID string, bookID int64) (bool, error)

	Progress(ctx context.Context, userID string, bookID int64) (*Progress, error)
	SaveProgress(ctx context.Context, userID string, p Progress) error
	RecentlyPlayed(ctx context.Context, userID string, limit int) ([]RecentBook, error)
}
