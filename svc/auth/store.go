package auth

import (
	"context"
	"time"
)

type Store interface {
	// CreateUser fills ID and timestamps. A taken email yields ErrEmailTaken.
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	// SetVerification replaces any earlier token of the user.
	SetVerification(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// Verify marks the owner of tokenHash verified and clears the token.
	Verify(ctx context.Context, tokenHash string, now time.Time) (*User, error)
}
