package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storify-asia/storify/pkg/pg"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const bookColumns = `b.id, b.title, b.author, b.description, b.cover_url, b.audio_url, b.duration, b.category, b.is_featured`

func scanBook(row pgx.Row, extra ...any) (Book, error) {
	var b Book
	dest := append([]any{&b.ID, &b.Title, &b.Author, &b.Description, &b.CoverURL, &b.AudioURL, &b.Duration, &b.Category, &b.IsFeatured}, extra...)
	err := row.Scan(dest...)
	return b, err
}

func collectBooks(rows pgx.Rows, err error) ([]Book, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *PgStore) ListBooks(ctx context.Context, p ListParams) ([]Book, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if p.Search != "" {
		add("b.title ILIKE ?", "%"+escapeLike(p.Search)+"%")
	}
	if p.Category != "" {
		add("b.category = ?", p.Category)
	}
	if p.Featured != nil {
		add("b.is_featured = ?", *p.Featured)
	}

	q := `SELECT ` + bookColumns + ` FROM books b`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY b.id DESC`
	return collectBooks(s.db.Query(ctx, q, args...))
}

func (s *PgStore) BooksByIDs(ctx context.Context, ids []int64) ([]Book, error) {
	if len(ids) == 0 {
		return []Book{}, nil
	}
	return collectBooks(s.db.Query(ctx, `
		SELECT `+bookColumns+`
		FROM unnest($1::bigint[]) WITH ORDINALITY AS ids(id, pos)
		JOIN books b ON b.id = ids.id
		ORDER BY ids.pos`, ids))
}

func (s *PgStore) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := scanBook(s.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books b WHERE b.id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PgStore) CreateBook(ctx context.Context, nb NewBook) (*Book, error) {
	b, err := scanBook(s.db.QueryRow(ctx, `
		INSERT INTO books AS b (title, author, description, cover_url, audio_url, duration, category, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+bookColumns,
		nb.Title, nb.Author, nb.Description, nb.CoverURL, nb.AudioURL, nb.Duration, nb.Category, nb.IsFeatured))
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PgStore) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT category FROM books ORDER BY category`)
	if err != nil {
		return nil, err
	}
	cats, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if cats == nil {
		cats = []string{}
	}
	return cats, err
}

func (s *PgStore) Favorites(ctx context.Context, userID string) ([]Book, error) {
	return collectBooks(s.db.Query(ctx, `
		SELECT `+bookColumns+`
		FROM favorites f JOIN books b ON b.id = f.book_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC`, userID))
}

func (s *PgStore) AddFavorite(ctx context.Context, userID string, bookID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO favorites (user_id, book_id) VALUES ($1, $2)
		ON CONFLICT (user_id, book_id) DO NOTHING`, userID, bookID)
	if pg.IsForeignKeyViolationError(err) {
		return ErrNotFound
	}
	return err
}

func (s *PgStore) RemoveFavorite(ctx context.Context, userID string, bookID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	return err
}

func (s *PgStore) IsFavorite(ctx context.Context, userID string, bookID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND book_id = $2)`,
		userID, bookID).Scan(&ok)
	return ok, err
}

func (s *PgStore) Progress(ctx context.Context, userID string, bookID int64) (*Progress, error) {
	p := Progress{BookID: bookID}
	err := s.db.QueryRow(ctx, `
		SELECT progress, current_time_sec, updated_at
		FROM playback_progress WHERE user_id = $1 AND book_id = $2`,
		userID, bookID).Scan(&p.Progress, &p.CurrentTime, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) SaveProgress(ctx context.Context, userID string, p Progress) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO playback_progress (user_id, book_id, progress, current_time_sec)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, book_id) DO UPDATE
		SET progress = EXCLUDED.progress,
		    current_time_sec = EXCLUDED.current_time_sec,
		    updated_at = now()`,
		userID, p.BookID, p.Progress, p.CurrentTime)
	if pg.IsForeignKeyViolationError(err) {
		return ErrNotFound
	}
	return err
}

func (s *PgStore) RecentlyPlayed(ctx context.Context, userID string, limit int) ([]RecentBook, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookColumns+`, p.progress, p.current_time_sec
		FROM playback_progress p JOIN books b ON b.id = p.book_id
		WHERE p.user_id = $1
		ORDER BY p.updated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RecentBook{}
	for rows.Next() {
		var r RecentBook
		b, err := scanBook(rows, &r.Progress, &r.CurrentTime)
		if err != nil {
			return nil, err
		}
		r.Book = b
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
