package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/dmitrymomot/substrack/pkg/clientip"
)

// maxKeyLength bounds stored key size.
const maxKeyLength = 64

// KeyFunc extracts the rate limit key of a request. An empty key skips
// limiting.
type KeyFunc func(*http.Request) string

// ByIP keys on the client IP stored by a clientip.Resolver, resolving it from
// RemoteAddr when the middleware did not run.
func ByIP(r *http.Request) string {
	if ip := clientip.FromContext(r.Context()); ip != "" {
		return ip
	}
	return clientip.New().FromRequest(r)
}

// ByRoute keys on the method and path, so every route gets its own budget
// when combined with another KeyFunc.
func ByRoute(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// Composite joins the non-empty parts. Keys longer than maxKeyLength are
// replaced with a 128-bit SHA-256 prefix.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ""
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			sum := sha256.Sum256([]byte(combined))
			return hex.EncodeToString(sum[:16])
		}
		return combined
	}
}
