// File: internal/middleware/identity.go
package middleware

import (
	"context"
	"net/http"

	"github.com/evanmb/go-converse/internal/domain"
	"github.com/evanmb/go-converse/internal/services/identity"
)

// WithIdentity attaches the request's identity to the context, falling back
// to the anonymous guest identity when no valid session cookie is present.
// Identity is read-only here; it only feeds message attribution and /api/me.
func WithIdentity(service *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := service.Current(r)
			if !ok {
				user = domain.Guest()
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the identity stored by WithIdentity.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(UserKey).(domain.User)
	return user, ok
}
