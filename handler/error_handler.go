package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/substrack/pkg/binder"
	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/requestid"
)

// ErrorMapper translates a domain error into an HTTPError or ValidationError.
// It returns nil when it does not recognise err.
type ErrorMapper func(err error) error

// ErrorInfo contains classified error information
type ErrorInfo struct {
	StatusCode int
	Mapped     error
	LogLevel   slog.Level
}

// classifyError runs the mappers in order, then falls back to the binder and
// body-size errors every JSON endpoint can hit.
func classifyError(err error, mappers []ErrorMapper) ErrorInfo {
	mapped, matched := err, false
	for _, m := range mappers {
		if out := m(err); out != nil {
			mapped, matched = out, true
			break
		}
	}

	var maxBytes *http.MaxBytesError
	switch {
	case matched:
	case errors.As(err, &maxBytes):
		mapped = ErrRequestEntityTooLarge
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		mapped = ErrUnsupportedMediaType
	case errors.Is(err, binder.ErrMissingContentType),
		errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParsePath):
		mapped = ErrBadRequest.WithMessage(err.Error())
	}

	status, _ := errorToDetail(mapped)
	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	return ErrorInfo{StatusCode: status, Mapped: mapped, LogLevel: level}
}

// NewErrorHandler returns an ErrorHandler that logs each failure and renders
// it with JSONError. 4xx responses log at warn, 5xx at error. Internal error
// text is logged but never written to the client.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		info := classifyError(err, mappers)

		log.LogAttrs(r.Context(), info.LogLevel, "request error",
			slog.String("request_id", requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		if renderErr := JSONError(info.Mapped).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.Error("failed to render error response", logger.Error(renderErr))
		}
	}
}
