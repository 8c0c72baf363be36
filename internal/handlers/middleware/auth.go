package middleware

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/handlers/render"
	"github.com/nkiryanov/agonauth/internal/handlers/userctx"
	"github.com/nkiryanov/agonauth/internal/models"
)

type authenticator interface {
	// Header to read credentials from
	AccessHeaderName() string

	// Verify header value and return identity it carries
	Authenticate(header string) (models.Identity, error)
}

type AuthMiddleware struct {
	authenticator authenticator
}

func NewAuth(a authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: a}
}

// Auth lets request through only with valid access token
// Identity is available to next handlers with userctx.FromContext
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(m.authenticator.AccessHeaderName())

		identity, err := m.authenticator.Authenticate(header)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrAccessTokenMissing):
			render.ServiceError(w, "No token provided", http.StatusUnauthorized)
			return
		case errors.Is(err, apperrors.ErrAccessTokenMalformed):
			render.ServiceError(w, "Invalid auth format", http.StatusUnauthorized)
			return
		default:
			render.ServiceError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := userctx.New(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
