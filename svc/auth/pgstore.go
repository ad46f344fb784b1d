package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storify-asia/storify/pkg/pg"
)

// PgStore keeps verification tokens on the users row, so a user has at
// most one outstanding token.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const userColumns = `id, email, name, password_hash, email_verified, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PgStore) CreateUser(ctx context.Context, u *User) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.PasswordHash).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if pg.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *PgStore) UserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id))
}

func (s *PgStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *PgStore) SetVerification(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET verification_token = $2, verification_expires = $3, updated_at = now()
		WHERE id::text = $1`, userID, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PgStore) Verify(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	var expires time.Time
	err := s.db.QueryRow(ctx,
		`SELECT verification_expires FROM users WHERE verification_token = $1`, tokenHash).Scan(&expires)
	if pg.IsNotFoundError(err) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !now.Before(expires) {
		return nil, ErrTokenExpired
	}

	u, err := scanUser(s.db.QueryRow(ctx, `
		UPDATE users
		SET email_verified = true, verification_token = NULL, verification_expires = NULL, updated_at = now()
		WHERE verification_token = $1
		RETURNING `+userColumns, tokenHash))
	if err == ErrUserNotFound {
		// consumed concurrently
		return nil, ErrInvalidToken
	}
	return u, err
}
