package auth

import (
	"context"
	"net/http"
)

type Middleware struct {
	verifier     TokenVerifier
	roles        []string
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

type contextKey struct{}

type verifiedToken struct {
	raw     string
	payload Payload
}

func NewMiddleware(verifier TokenVerifier, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(verifier, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		verifier:     cfg.verifier,
		roles:        cfg.roles,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := m.extractor(r)
		if err != nil {
			m.errorHandler(w, r, &GuardError{Kind: ErrUnauthenticated, Reason: "authentication token required"})
			return
		}

		payload, ok := m.verifier.Verify(r.Context(), raw)
		if !ok {
			m.errorHandler(w, r, &GuardError{Kind: ErrUnauthenticated, Reason: "invalid or expired token"})
			return
		}

		if len(m.roles) > 0 && !payload.HasAnyRole(m.roles...) {
			m.errorHandler(w, r, &GuardError{Kind: ErrForbidden, Reason: "insufficient permissions for this resource"})
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, verifiedToken{raw: raw, payload: payload})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PayloadFromContext returns the payload attached by a guard.
func PayloadFromContext(ctx context.Context) (Payload, bool) {
	if ctx == nil {
		return Payload{}, false
	}
	v, ok := ctx.Value(contextKey{}).(verifiedToken)
	return v.payload, ok
}

// RawTokenFromContext returns the serialized token that passed the guard.
func RawTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(contextKey{}).(verifiedToken)
	return v.raw, ok
}
