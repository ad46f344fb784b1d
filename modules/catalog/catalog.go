// Package catalog exposes books, favorites and playback progress over HTTP.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/pkg/binder"
	"github.com/storify-asia/storify/pkg/session"
	"github.com/storify-asia/storify/svc/catalog"
)

type Catalog interface {
	List(ctx context.Context, p catalog.ListParams) ([]catalog.Book, error)
	Get(ctx context.Context, id int64) (*catalog.Book, error)
	Create(ctx context.Context, nb catalog.NewBook) (*catalog.Book, error)
	Categories(ctx context.Context) ([]string, error)
	Favorites(ctx context.Context, userID string) ([]catalog.Book, error)
	ToggleFavorite(ctx context.Context, userID string, bookID int64) (bool, error)
	IsFavorite(ctx context.Context, userID string, bookID int64) (bool, error)
	Progress(ctx context.Context, userID string, bookID int64) (*catalog.Progress, error)
	SaveProgress(ctx context.Context, userID string, p catalog.Progress) error
	RecentlyPlayed(ctx context.Context, userID string) ([]catalog.RecentBook, error)
}

type Module struct {
	books  Catalog
	errors handler.ErrorHandler[handler.Context]
}

// New returns the catalog module backed by books.
func New(books Catalog, log *slog.Logger) *Module {
	return &Module{
		books:  books,
		errors: handler.NewErrorHandler(log),
	}
}

// Routes mounts the book, favorite and playback endpoints. Reads are public;
// writes need a signed-in session.
func (m *Module) Routes(r chi.Router) {
	path := binder.Path(chi.URLParam)

	r.Get("/books", handler.Wrap(m.list,
		handler.WithBinders[handler.Context, listRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, listRequest](m.errors),
	))
	r.Get("/books/{id}", handler.Wrap(m.get,
		handler.WithBinders[handler.Context, bookRequest](path),
		handler.WithErrorHandler[handler.Context, bookRequest](m.errors),
	))
	r.Get("/categories", handler.Wrap(m.categories,
		handler.WithErrorHandler[handler.Context, struct{}](m.errors),
	))
	r.Get("/favorites/{bookId}/check", handler.Wrap(m.checkFavorite,
		handler.WithBinders[handler.Context, bookRequest](path),
		handler.WithErrorHandler[handler.Context, bookRequest](m.errors),
	))
	r.Get("/playback/recently-played", handler.Wrap(m.recent,
		handler.WithErrorHandler[handler.Context, struct{}](m.errors),
	))
	r.Get("/playback/{bookId}", handler.Wrap(m.progress,
		handler.WithBinders[handler.Context, bookRequest](path),
		handler.WithErrorHandler[handler.Context, bookRequest](m.errors),
	))

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth)

		r.Post("/books", handler.Wrap(m.create,
			handler.WithBinders[handler.Context, catalog.NewBook](binder.JSON()),
			handler.WithErrorHandler[handler.Context, catalog.NewBook](m.errors),
		))
		r.Get("/favorites", handler.Wrap(m.favorites,
			handler.WithErrorHandler[handler.Context, struct{}](m.errors),
		))
		r.Post("/favorites/{bookId}", handler.Wrap(m.toggleFavorite,
			handler.WithBinders[handler.Context, bookRequest](path),
			handler.WithErrorHandler[handler.Context, bookRequest](m.errors),
		))
		r.Post("/playback/{bookId}", handler.Wrap(m.saveProgress,
			handler.WithBinders[handler.Context, progressRequest](path, binder.JSON()),
			handler.WithErrorHandler[handler.Context, progressRequest](m.errors),
		))
	})
}

type listRequest struct {
	Search   string `query:"search"`
	Category string `query:"category"`
	Featured *bool  `query:"featured"`
}

func (m *Module) list(ctx handler.Context, req listRequest) handler.Response {
	books, err := m.books.List(ctx, catalog.ListParams{
		Search:   req.Search,
		Category: req.Category,
		Featured: req.Featured,
	})
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(books)
}

// bookRequest covers both {id} and {bookId} routes.
type bookRequest struct {
	ID     int64 `path:"id"`
	BookID int64 `path:"bookId"`
}

func (b bookRequest) id() int64 {
	if b.BookID != 0 {
		return b.BookID
	}
	return b.ID
}

func (m *Module) get(ctx handler.Context, req bookRequest) handler.Response {
	book, err := m.books.Get(ctx, req.id())
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(book)
}

func (m *Module) create(ctx handler.Context, req catalog.NewBook) handler.Response {
	book, err := m.books.Create(ctx, req)
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(book, handler.WithJSONStatus(http.StatusCreated))
}

func (m *Module) categories(ctx handler.Context, _ struct{}) handler.Response {
	cats, err := m.books.Categories(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(cats)
}

func (m *Module) favorites(ctx handler.Context, _ struct{}) handler.Response {
	books, err := m.books.Favorites(ctx, session.UserIDFromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(books)
}

type favoriteResponse struct {
	IsFavorite bool `json:"isFavorite"`
}

func (m *Module) toggleFavorite(ctx handler.Context, req bookRequest) handler.Response {
	fav, err := m.books.ToggleFavorite(ctx, session.UserIDFromContext(ctx), req.id())
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(favoriteResponse{IsFavorite: fav})
}

func (m *Module) checkFavorite(ctx handler.Context, req bookRequest) handler.Response {
	fav, err := m.books.IsFavorite(ctx, session.UserIDFromContext(ctx), req.id())
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(favoriteResponse{IsFavorite: fav})
}

func (m *Module) progress(ctx handler.Context, req bookRequest) handler.Response {
	p, err := m.books.Progress(ctx, session.UserIDFromContext(ctx), req.id())
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(p)
}

type progressRequest struct {
	BookID      int64   `path:"bookId"`
	Progress    float64 `json:"progress"`
	CurrentTime float64 `json:"currentTime"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (m *Module) saveProgress(ctx handler.Context, req progressRequest) handler.Response {
	err := m.books.SaveProgress(ctx, session.UserIDFromContext(ctx), catalog.Progress{
		BookID:      req.BookID,
		Progress:    req.Progress,
		CurrentTime: req.CurrentTime,
	})
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(successResponse{Success: true})
}

// recent answers an empty list for anonymous callers.
func (m *Module) recent(ctx handler.Context, _ struct{}) handler.Response {
	userID := session.UserIDFromContext(ctx)
	if userID == "" {
		return handler.JSON([]catalog.RecentBook{})
	}
	books, err := m.books.RecentlyPlayed(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(books)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return handler.ErrNotFound.WithMessage("Book not found")
	case errors.Is(err, catalog.ErrInvalidInput):
		return handler.ErrBadRequest.WithMessage("Invalid playback progress")
	}
	// ErrInvalidBook carries validator errors and becomes a 422
	return err
}
