package entitlement

import (
	"context"

	"github.com/storify-asia/storify/svc/identity"
)

// Store persists consumption events, one per (identity, book).
type Store interface {
	// Record is a set insert: repeats are silently ignored.
	Record(ctx context.Context, id identity.Identity, bookID int64) error
	// Count returns distinct books consumed. Visitor counts only include
	// events not attributed to a user.
	Count(ctx context.Context, id identity.Identity) (int, error)
}
