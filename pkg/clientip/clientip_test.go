package clientip_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/substrack/pkg/clientip"
)

func TestResolver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    []string
		set        map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "first trusted header wins",
			headers:    clientip.DefaultHeaders,
			set:        map[string]string{"CF-Connecting-IP": "203.0.113.195", "X-Forwarded-For": "192.168.1.1"},
			remoteAddr: "172.16.0.1:54321",
			want:       "203.0.113.195",
		},
		{
			name:       "forwarded for takes first valid entry",
			headers:    clientip.DefaultHeaders,
			set:        map[string]string{"X-Forwarded-For": "garbage, 198.51.100.178, 203.0.113.195"},
			remoteAddr: "10.0.0.1:54321",
			want:       "198.51.100.178",
		},
		{
			name:       "untrusted header ignored",
			headers:    []string{"X-Real-IP"},
			set:        map[string]string{"X-Forwarded-For": "198.51.100.178"},
			remoteAddr: "10.0.0.1:54321",
			want:       "10.0.0.1",
		},
		{
			name:       "invalid header falls back to remote addr",
			headers:    clientip.DefaultHeaders,
			set:        map[string]string{"X-Real-IP": "not-an-ip"},
			remoteAddr: "10.0.0.2:80",
			want:       "10.0.0.2",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "ipv4 mapped ipv6 is unmapped",
			headers:    []string{"X-Real-IP"},
			set:        map[string]string{"X-Real-IP": "::ffff:192.0.2.7"},
			remoteAddr: "10.0.0.1:1",
			want:       "192.0.2.7",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.9",
			want:       "192.0.2.9",
		},
		{
			name:       "nothing parses",
			remoteAddr: "pipe",
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.set {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.New(tt.headers...).FromRequest(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.New("X-Real-IP").Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = clientip.FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	r.Header.Set("X-Real-IP", "198.51.100.20")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "198.51.100.20", got)

	attr, ok := clientip.LoggerExtractor()(clientip.WithContext(context.Background(), got))
	assert.True(t, ok)
	assert.Equal(t, "client_ip", attr.Key)

	_, ok = clientip.LoggerExtractor()(context.Background())
	assert.False(t, ok)
}
