package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolserver/internal/tracing"
)

type claimsKey struct{}

// WithClaims attaches claims to ctx
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims attached by Middleware
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}

// BearerToken extracts the token from an Authorization header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// Middleware validates bearer tokens. Valid claims are attached to the
// request context. When required is false every request passes; a bad token
// is only logged.
func Middleware(v *Validator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Validate(BearerToken(r))
			if err != nil {
				if required {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected unauthenticated request")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				if BearerToken(r) != "" {
					log.Debug().Err(err).Str("path", r.URL.Path).Msg("Ignoring invalid token")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if subject := claims.Subject(); subject != "" {
				ctx = tracing.WithSubject(ctx, subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
