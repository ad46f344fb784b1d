package binder

import "errors"

var (
	// ErrBinderNotApplicable tells handler.Wrap to skip a binder for this
	// request, e.g. the JSON binder on a GET without a body.
	ErrBinderNotApplicable = errors.New("binder not applicable")

	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
	ErrFailedToParsePath    = errors.New("failed to parse path parameters")
)
