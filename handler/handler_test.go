package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/handler"
	"github.com/dmitrymomot/substrack/pkg/binder"
)

type renameRequest struct {
	PlanID string `path:"planID"`
	Name   string `json:"name"`
}

func TestWrap(t *testing.T) {
	t.Parallel()

	rename := func(ctx handler.Context, req renameRequest) handler.Response {
		return handler.JSON(map[string]string{"plan_id": req.PlanID, "name": req.Name})
	}

	newRouter := func(h handler.HandlerFunc[handler.Context, renameRequest], opts ...handler.WrapOption[handler.Context, renameRequest]) http.Handler {
		r := chi.NewRouter()
		opts = append([]handler.WrapOption[handler.Context, renameRequest]{
			handler.WithBinders[handler.Context, renameRequest](binder.Path(chi.URLParam), binder.JSON()),
		}, opts...)
		r.Post("/plans/{planID}", handler.Wrap(h, opts...))
		return r
	}

	t.Run("binds path and body", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/plans/pro", strings.NewReader(`{"name":"Pro"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		newRouter(rename).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"plan_id":"pro","name":"Pro"}`, rec.Body.String())
	})

	t.Run("binding error renders 500 by default", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/plans/pro", strings.NewReader(`{"name":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		newRouter(rename).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"internal_server_error"`)
	})

	t.Run("custom error handler receives binding error", func(t *testing.T) {
		t.Parallel()
		var got error
		eh := func(ctx handler.Context, err error) {
			got = err
			ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
		}
		req := httptest.NewRequest(http.MethodPost, "/plans/pro", strings.NewReader(`{"name":"x"}`))
		rec := httptest.NewRecorder()
		newRouter(rename, handler.WithErrorHandler[handler.Context, renameRequest](eh)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.ErrorIs(t, got, binder.ErrMissingContentType)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		eh := func(ctx handler.Context, err error) { got = err }
		h := func(handler.Context, renameRequest) handler.Response { return nil }
		req := httptest.NewRequest(http.MethodPost, "/plans/pro", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		newRouter(h, handler.WithErrorHandler[handler.Context, renameRequest](eh)).ServeHTTP(httptest.NewRecorder(), req)

		assert.ErrorIs(t, got, handler.ErrNilResponse)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, renameRequest] {
			return func(next handler.HandlerFunc[handler.Context, renameRequest]) handler.HandlerFunc[handler.Context, renameRequest] {
				return func(ctx handler.Context, req renameRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		req := httptest.NewRequest(http.MethodPost, "/plans/pro", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		newRouter(rename, handler.WithDecorators(mark("outer"), mark("inner"))).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"outer", "inner"}, order)
	})

	t.Run("context exposes request values", func(t *testing.T) {
		t.Parallel()
		type key struct{}
		h := handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
			return handler.JSON(map[string]any{"value": ctx.Value(key{}), "method": ctx.Request().Method})
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), key{}, "v"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "v", body["value"])
		assert.Equal(t, http.MethodGet, body["method"])
	})
}

type ctxKey struct{}

func TestNewContext(t *testing.T) {
	t.Parallel()

	base, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "merchant-1"))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil).WithContext(base)
	rec := httptest.NewRecorder()

	ctx := handler.NewContext(rec, req)
	assert.Same(t, req, ctx.Request())
	assert.Equal(t, "merchant-1", ctx.Value(ctxKey{}))
	require.NoError(t, ctx.Err())

	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
