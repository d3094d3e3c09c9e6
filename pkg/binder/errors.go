package binder

import "errors"

// Common binding errors
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParsePath    = errors.New("failed to parse path parameters")
	ErrMissingContentType   = errors.New("missing content type")

	// ErrBinderNotApplicable lets a binder opt out for a request it does not
	// handle. The handler package skips binders that return it.
	ErrBinderNotApplicable = errors.New("binder not applicable to this request")
)
