package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/substrack/handler"
	"github.com/dmitrymomot/substrack/pkg/binder"
	"github.com/dmitrymomot/substrack/pkg/jwt"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

// ExchangeRequest trades a checkout session id for its access token.
type ExchangeRequest struct {
	SessionID string `json:"session_id"`
}

type entitlementsResponse struct {
	*svc.AccessClaims
	HasSubscription bool `json:"has_subscription"`
}

func (m *Module) exchangeHandler() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req ExchangeRequest) handler.Response {
		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			verr := handler.NewValidationError()
			verr.Add("session_id", "is required")
			return handler.Fail(verr)
		}
		res, err := m.opts.Tokens.Exchange(ctx, sessionID)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(res, handler.WithJSONHeader("Cache-Control", "no-store"))
	},
		handler.WithBinder[handler.Context, ExchangeRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, ExchangeRequest](m.errorHandler),
	)
}

func (m *Module) entitlementsHandler() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		claims, ok := ClaimsFromContext(ctx)
		if !ok {
			return handler.Fail(handler.ErrUnauthorized)
		}
		return handler.JSON(entitlementsResponse{AccessClaims: claims, HasSubscription: claims.HasSubscription()})
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}

// ClaimsFromContext returns the verified access claims stored by
// RequireAccess.
func ClaimsFromContext(ctx context.Context) (*svc.AccessClaims, bool) {
	claims, ok := jwt.GetClaims[svc.AccessClaims](ctx)
	if !ok {
		return nil, false
	}
	return &claims, true
}

// AccessOption narrows what RequireAccess accepts.
type AccessOption func(*accessRules)

type accessRules struct {
	subscription bool
	features     []string
}

// WithActiveSubscription rejects tokens whose subscriber is not active.
func WithActiveSubscription() AccessOption {
	return func(r *accessRules) { r.subscription = true }
}

// WithFeature rejects tokens whose plan lacks feature.
func WithFeature(feature string) AccessOption {
	return func(r *accessRules) { r.features = append(r.features, feature) }
}

// RequireAccess verifies the bearer access token server-side and stores the
// claims for ClaimsFromContext. Missing, forged or expired tokens get 401;
// tokens that fail an AccessOption get 403.
//
//	r.With(billing.RequireAccess(tokens, billing.WithFeature("exports"))).
//		Get("/exports", exportHandler)
func RequireAccess(tokens *svc.TokenIssuer, opts ...AccessOption) func(http.Handler) http.Handler {
	var rules accessRules
	for _, opt := range opts {
		opt(&rules)
	}

	deny := func(w http.ResponseWriter, r *http.Request, err handler.HTTPError) {
		var jsonOpts []handler.JSONOption
		if err.Code == http.StatusUnauthorized {
			jsonOpts = append(jsonOpts, handler.WithJSONHeader("WWW-Authenticate", `Bearer realm="substrack"`))
		}
		_ = handler.JSONError(err, jsonOpts...).Render(w, r)
	}

	verify := jwt.Middleware[svc.AccessClaims](tokens.Signer(), jwt.MiddlewareConfig{
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, jwt.ErrExpiredToken) {
				deny(w, r, handler.ErrUnauthorized.WithMessage("access token expired"))
				return
			}
			deny(w, r, handler.ErrUnauthorized.WithMessage("missing or invalid access token"))
		},
	})

	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				deny(w, r, handler.ErrUnauthorized)
				return
			}
			if rules.subscription && !claims.HasSubscription() {
				deny(w, r, handler.ErrForbidden.WithMessage("subscription is not active"))
				return
			}
			for _, f := range rules.features {
				if !claims.HasFeature(f) {
					deny(w, r, handler.ErrForbidden.WithMessage("plan does not include "+f))
					return
				}
			}
			next.ServeHTTP(w, r)
		}))
	}
}
