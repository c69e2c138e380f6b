package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"freelatracker/internal/observability"
)

type contextKey struct{}

// Middleware resolves the bearer token once and stores the user in the
// request context for downstream handlers.
func Middleware(service *Service, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeUnauthenticated(w)
				return
			}

			user, err := service.ResolveIdentity(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					writeUnauthenticated(w)
					return
				}
				observability.CaptureError(logger, "resolve_identity_failed", err, nil)
				writeError(w, http.StatusInternalServerError, "failed to validate credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// CurrentUser returns the user stored by Middleware.
func CurrentUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
}
