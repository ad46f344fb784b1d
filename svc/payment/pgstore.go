package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

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

const txColumns = `id, user_id, plan_id, amount, status, gateway, external_id,
	COALESCE(payment_url, ''), COALESCE(qr_content, ''), metadata,
	expired_at, paid_at, created_at, updated_at`

func scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var meta []byte
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.PlanID,
		&t.Amount,
		&t.Status,
		&t.Gateway,
		&t.ExternalID,
		&t.PaymentURL,
		&t.QRContent,
		&meta,
		&t.ExpiredAt,
		&t.PaidAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (s *PgStore) Create(ctx context.Context, t *Transaction) error {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO payment_transactions
			(user_id, plan_id, amount, status, gateway, external_id, payment_url, qr_content, metadata, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		RETURNING id, created_at, updated_at`,
		t.UserID, t.PlanID, t.Amount, t.Status, t.Gateway, t.ExternalID,
		t.PaymentURL, t.QRContent, meta, t.ExpiredAt,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(ErrDuplicateExternalID, err)
	}
	return err
}

func (s *PgStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	return scanTx(s.db.QueryRow(ctx, `SELECT `+txColumns+` FROM payment_transactions WHERE id = $1`, id))
}

func (s *PgStore) GetByExternalID(ctx context.Context, gateway, externalID string) (*Transaction, error) {
	return scanTx(s.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE gateway = $1 AND external_id = $2`,
		gateway, externalID))
}

func (s *PgStore) Transition(ctx context.Context, id int64, to Status, paidAt *time.Time, metadata map[string]any) (bool, error) {
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_transactions
		SET status = $2,
			paid_at = COALESCE($3, paid_at),
			metadata = COALESCE(metadata, '{}'::jsonb) || $4::jsonb,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, to, paidAt, meta,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ListStalePending(ctx context.Context, now time.Time, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+txColumns+`
		FROM payment_transactions
		WHERE status = 'pending' AND expired_at < $1
		ORDER BY expired_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
