package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	serve := func(headers map[string]string) (string, *httptest.ResponseRecorder) {
		var seen string
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestid.FromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return seen, rec
	}

	t.Run("generates id", func(t *testing.T) {
		t.Parallel()
		id, rec := serve(nil)
		require.NotEmpty(t, id)
		assert.Equal(t, id, rec.Header().Get(requestid.Header))
	})

	t.Run("reuses client id", func(t *testing.T) {
		t.Parallel()
		id, _ := serve(map[string]string{requestid.Header: "req-123"})
		assert.Equal(t, "req-123", id)
	})

	t.Run("falls back to stripe request id", func(t *testing.T) {
		t.Parallel()
		id, _ := serve(map[string]string{requestid.StripeHeader: "req_abc123"})
		assert.Equal(t, "req_abc123", id)
	})

	t.Run("replaces malformed ids", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{"has spaces", "<script>", strings.Repeat("a", 129)} {
			id, _ := serve(map[string]string{requestid.Header: bad})
			assert.NotEqual(t, bad, id)
			assert.NotEmpty(t, id)
		}
	})
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := requestid.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(requestid.WithContext(context.Background(), "req-1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "req-1", attr.Value.String())
}
