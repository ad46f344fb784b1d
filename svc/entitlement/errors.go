package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrNoIdentity     = errors.New("caller has no identity to record against")
	ErrInvalidContent = errors.New("invalid content id")
)

// DeniedError reports that the caller exhausted its quota. Status is the
// decision that caused the refusal.
type DeniedError struct {
	Status Status
}

func (e *DeniedError) Error() string {
	limit := 0
	if e.Status.Limit != nil {
		limit = *e.Status.Limit
	}
	return fmt.Sprintf("listening limit reached: %s (%d/%d)", e.Status.Reason, e.Status.ListenCount, limit)
}

// IsDenied reports whether err carries a *DeniedError and returns it.
func IsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	ok := errors.As(err, &d)
	return d, ok
}
