package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgWriter inserts entries into the user_activity table.
type PgWriter struct {
	pool *pgxpool.Pool
}

func NewPgWriter(pool *pgxpool.Pool) *PgWriter {
	return &PgWriter{pool: pool}
}

const insertActivity = `
INSERT INTO user_activity (user_id, action, resource_type, resource_id, metadata, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)`

func (w *PgWriter) WriteBatch(ctx context.Context, entries []Entry) error {
	b := &pgx.Batch{}
	for _, e := range entries {
		var meta []byte
		if len(e.Metadata) > 0 {
			var err error
			if meta, err = json.Marshal(e.Metadata); err != nil {
				return fmt.Errorf("encode activity metadata: %w", err)
			}
		}
		b.Queue(insertActivity, e.UserID, e.Action, e.ResourceType, e.ResourceID, meta, e.CreatedAt)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
