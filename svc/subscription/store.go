package subscription

import (
	"context"
	"time"
)

type Store interface {
	ListActivePlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, id int64) (*Plan, error)
	// UpsertPlan inserts or updates a plan keyed by name and returns its id.
	UpsertPlan(ctx context.Context, p Plan) (int64, error)

	// Active returns the active subscription with the latest end date after
	// now, or ErrNotFound.
	Active(ctx context.Context, userID string, now time.Time) (*Subscription, error)
	// CreateForTransaction inserts s unless a subscription already exists for
	// s.PaymentTransactionID. It returns the stored row and whether this call
	// created it.
	CreateForTransaction(ctx context.Context, s Subscription) (*Subscription, bool, error)
}
