package catalog

import "errors"

var (
	ErrNotFound     = errors.New("book not found")
	ErrInvalidBook  = errors.New("invalid book")
	ErrInvalidInput = errors.New("invalid playback progress")
)
