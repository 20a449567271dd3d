package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/skillforge/server/internal/auth"
	"github.com/skillforge/server/internal/http/handlers"
	"github.com/skillforge/server/internal/middleware"
	"github.com/skillforge/server/internal/ratelimit"
)

// NewRouter creates a new HTTP router with all routes configured. Two rate
// limit tiers apply: authLimiter guards credential endpoints, generalLimiter
// guards everything else. Limits run before any business logic.
func NewRouter(authHandler *handlers.AuthHandler, authService *auth.Service, authLimiter, generalLimiter *ratelimit.Limiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(authLimiter))
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/refresh", authHandler.HandleRefresh)
		r.Post("/auth/logout", authHandler.HandleLogout)
	})

	// Protected routes (require valid access token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(generalLimiter))
		r.Use(middleware.AuthMiddleware(authService))
		r.Get("/me", authHandler.HandleMe)
		r.Get("/auth/sessions", authHandler.HandleSessions)
		r.Post("/auth/password", authHandler.HandleChangePassword)
	})

	return r
}
