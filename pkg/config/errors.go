package config

import "errors"

var (
	// ErrParsingConfig is returned when the environment cannot be decoded into the target struct.
	ErrParsingConfig = errors.New("config: failed to parse environment")

	// ErrNilPointer is returned when Load receives a nil target.
	ErrNilPointer = errors.New("config: nil target")
)
