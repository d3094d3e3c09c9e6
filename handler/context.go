package handler

import (
	"context"
	"net/http"
)

// Context is what every HandlerFunc receives: the request context plus the
// raw request and writer for handlers that need the exact body or headers,
// such as webhook signature checks.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
}

// NewContext binds w and r. Deadline, cancellation and values come from
// r.Context() as it was when the handler was entered; middleware that
// replaces the request must run before Wrap.
func NewContext(w http.ResponseWriter, r *http.Request) Context {
	return &httpContext{Context: r.Context(), w: w, r: r}
}

type httpContext struct {
	context.Context
	w http.ResponseWriter
	r *http.Request
}

func (c *httpContext) Request() *http.Request              { return c.r }
func (c *httpContext) ResponseWriter() http.ResponseWriter { return c.w }
