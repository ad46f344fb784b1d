package entitlement

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storify-asia/storify/svc/identity"
)

// PgStore relies on two partial unique indexes on listening_history:
// (user_id, book_id) where user_id is set, and (visitor_id, book_id) where it
// is not.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Record(ctx context.Context, id identity.Identity, bookID int64) error {
	var err error
	switch id.Kind {
	case identity.KindUser:
		_, err = s.db.Exec(ctx, `
			INSERT INTO listening_history (user_id, book_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, book_id) WHERE user_id IS NOT NULL DO NOTHING`,
			id.UserID, bookID)
	case identity.KindVisitor:
		_, err = s.db.Exec(ctx, `
			INSERT INTO listening_history (visitor_id, book_id)
			VALUES ($1, $2)
			ON CONFLICT (visitor_id, book_id) WHERE user_id IS NULL DO NOTHING`,
			id.VisitorID, bookID)
	default:
		return ErrNoIdentity
	}
	return err
}

func (s *PgStore) Count(ctx context.Context, id identity.Identity) (int, error) {
	var n int
	var err error
	switch id.Kind {
	case identity.KindUser:
		err = s.db.QueryRow(ctx,
			`SELECT COUNT(DISTINCT book_id) FROM listening_history WHERE user_id = $1`,
			id.UserID).Scan(&n)
	case identity.KindVisitor:
		err = s.db.QueryRow(ctx,
			`SELECT COUNT(DISTINCT book_id) FROM listening_history WHERE visitor_id = $1 AND user_id IS NULL`,
			id.VisitorID).Scan(&n)
	}
	return n, err
}
