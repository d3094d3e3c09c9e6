package binder_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/pkg/binder"
)

func TestPath(t *testing.T) {
	t.Parallel()

	type invoiceRequest struct {
		MerchantID    uuid.UUID  `path:"merchantID"`
		TransactionID *uuid.UUID `path:"transactionID"`
		Page          int        `path:"page"`
		Draft         bool       `path:"draft"`
		Internal      string     `path:"-"`
		Body          string     `json:"body"`
	}

	merchantID := uuid.New()
	txID := uuid.New()

	mapExtractor := func(params map[string]string) func(*http.Request, string) string {
		return func(_ *http.Request, name string) string { return params[name] }
	}

	t.Run("binds tagged fields", func(t *testing.T) {
		t.Parallel()
		params := map[string]string{
			"merchantID":    merchantID.String(),
			"transactionID": txID.String(),
			"page":          "2",
			"draft":         "true",
			"-":             "ignored",
			"body":          "ignored",
		}
		var got invoiceRequest
		err := binder.Path(mapExtractor(params))(httptest.NewRequest(http.MethodGet, "/", nil), &got)
		require.NoError(t, err)
		assert.Equal(t, merchantID, got.MerchantID)
		require.NotNil(t, got.TransactionID)
		assert.Equal(t, txID, *got.TransactionID)
		assert.Equal(t, 2, got.Page)
		assert.True(t, got.Draft)
		assert.Empty(t, got.Internal)
		assert.Empty(t, got.Body)
	})

	t.Run("missing params keep zero values", func(t *testing.T) {
		t.Parallel()
		var got invoiceRequest
		err := binder.Path(mapExtractor(nil))(httptest.NewRequest(http.MethodGet, "/", nil), &got)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, got.MerchantID)
		assert.Nil(t, got.TransactionID)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		t.Parallel()
		var got invoiceRequest
		err := binder.Path(mapExtractor(map[string]string{"merchantID": "acme"}))(httptest.NewRequest(http.MethodGet, "/", nil), &got)
		assert.ErrorIs(t, err, binder.ErrFailedToParsePath)
	})

	t.Run("invalid int", func(t *testing.T) {
		t.Parallel()
		var got invoiceRequest
		err := binder.Path(mapExtractor(map[string]string{"page": "two"}))(httptest.NewRequest(http.MethodGet, "/", nil), &got)
		assert.ErrorIs(t, err, binder.ErrFailedToParsePath)
	})

	t.Run("bad targets", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		var got invoiceRequest
		assert.ErrorIs(t, binder.Path(nil)(req, &got), binder.ErrFailedToParsePath)
		assert.ErrorIs(t, binder.Path(mapExtractor(nil))(req, got), binder.ErrFailedToParsePath)
		n := 1
		assert.ErrorIs(t, binder.Path(mapExtractor(nil))(req, &n), binder.ErrFailedToParsePath)
	})

	t.Run("chi extractor", func(t *testing.T) {
		t.Parallel()
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("merchantID", merchantID.String())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

		var got invoiceRequest
		require.NoError(t, binder.Path(chi.URLParam)(req, &got))
		assert.Equal(t, merchantID, got.MerchantID)
	})
}
