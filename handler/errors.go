package handler

import (
	"errors"
	"net/http"
)

// ErrNilResponse indicates a handler returned nil instead of a Response.
var ErrNilResponse = errors.New("handler returned nil response")

type failResponse struct{ err error }

func (f failResponse) Render(http.ResponseWriter, *http.Request) error { return f.err }

// Fail returns a Response that routes err to the error handler configured on
// Wrap, so domain errors are mapped in one place.
//
//	if err != nil {
//		return handler.Fail(err)
//	}
func Fail(err error) Response {
	return failResponse{err: err}
}
