package handlers

import (
	"net/http"

	"github.com/nkiryanov/agonauth/internal/handlers/middleware"
	"github.com/nkiryanov/agonauth/internal/logger"
	"github.com/nkiryanov/agonauth/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Everything the routes need from auth layer
type AuthService interface {
	authService

	AccessHeaderName() string
	Authenticate(header string) (models.Identity, error)
}

type RouterConfig struct {
	// Prometheus exposition handler. /metrics is not mounted if nil
	Metrics http.Handler

	// Throttles register and login. nil disables throttling
	RateLimiter *middleware.RateLimiter

	// Origins allowed to call the API from browser
	CORSOrigins []string
}

func NewRouter(authService AuthService, logger logger.Logger, cfg RouterConfig) http.Handler {
	authMiddleware := middleware.NewAuth(authService)
	limit := cfg.RateLimiter.Limit

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", limit(handleRegister(authService, logger)))
	apiauth.Handle("POST /login", limit(handleLogin(authService, logger)))
	apiauth.Handle("POST /refresh", handleRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("GET /api/profile", authMiddleware.Auth(handleProfile()))
	root.Handle("GET /{$}", handleHealth())
	if cfg.Metrics != nil {
		root.Handle("GET /metrics", cfg.Metrics)
	}

	handler := chain(root,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	return handler
}
