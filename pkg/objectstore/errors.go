package objectstore

import "errors"

var (
	ErrNotConfigured = errors.New("object store not configured")
	ErrInvalidKey    = errors.New("invalid object key")
	ErrNotFound      = errors.New("object not found")
	ErrAccessDenied  = errors.New("object store access denied")
	ErrPresign       = errors.New("failed to presign object url")
)
