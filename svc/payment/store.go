package payment

import (
	"context"
	"time"
)

type Store interface {
	// Create assigns ID and timestamps to t.
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id int64) (*Transaction, error)
	GetByExternalID(ctx context.Context, gateway, externalID string) (*Transaction, error)
	// Transition moves a pending transaction to status and merges metadata.
	// It reports false when the transaction was not pending anymore.
	Transition(ctx context.Context, id int64, to Status, paidAt *time.Time, metadata map[string]any) (bool, error)
	// ListStalePending returns pending transactions whose expiry is before now.
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]Transaction, error)
}
