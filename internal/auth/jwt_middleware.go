package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/leadpool/internal/api"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/models"
)

type contextKey int

const (
	userContextKey contextKey = iota
)

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the authenticated user from the request context.
// The second return value is false for unauthenticated requests.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// Middleware returns an HTTP middleware that rejects requests without a valid JWT and
// stores the resolved user in the request context.
//
// The token is read from the Authorization header. When allowQueryToken is set the
// access_token query parameter is accepted as well, since browser EventSource
// connections cannot set headers.
func (v *Verifier) Middleware(allowQueryToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := zerolog.Ctx(r.Context())

			tokenString := extractBearerToken(r)
			if tokenString == "" && allowQueryToken {
				tokenString = r.URL.Query().Get("access_token")
			}
			if tokenString == "" {
				logger.Debug().Msg("Missing Authorization header")
				httpmiddleware.WriteError(w, r, http.StatusUnauthorized, api.CodeUnauthenticated, ErrMissingToken.Error())
				return
			}

			user, err := v.Verify(tokenString)
			if err != nil {
				logger.Warn().Err(err).Msg("JWT verification failed")
				httpmiddleware.WriteError(w, r, http.StatusUnauthorized, api.CodeUnauthenticated, ErrInvalidToken.Error())
				return
			}

			logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Int64("user_id", user.ID)
			})

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
