package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/candidate-registry/internal/api/http/handlers"
	"github.com/spec-kit/candidate-registry/internal/auth"
	"github.com/spec-kit/candidate-registry/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Auth            *handlers.AuthHandler
	Candidates      *handlers.CandidatesHandler
	AdminCandidates *handlers.AdminCandidatesHandler
	AuthMiddleware  *auth.AuthMiddleware
	Metrics         *observability.Metrics
	FilesPrefix     string
	FilesDir        string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
	if cfg.FilesPrefix != "" && cfg.FilesDir != "" {
		app.Static(cfg.FilesPrefix, cfg.FilesDir, fiber.Static{Browse: false})
	}

	authGroup := app.Group("/auth/admin")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Auth.Logout)

	candidates := app.Group("/candidates")
	candidates.Post("", cfg.Candidates.Register)
	candidates.Get("/:id/status", cfg.Candidates.Status)
	candidates.Get("/:id/status/stream", cfg.Candidates.StatusStream)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/dashboard", cfg.AdminCandidates.Dashboard)
	admin.Get("/candidates", cfg.AdminCandidates.List)
	admin.Get("/candidates/stream", cfg.AdminCandidates.Stream)
	admin.Get("/candidates/:id", cfg.AdminCandidates.Get)
	admin.Put("/candidates/:id", cfg.AdminCandidates.Update)
	admin.Delete("/candidates/:id", cfg.AdminCandidates.Delete)
	admin.Post("/candidates/:id/transitions", cfg.AdminCandidates.Transition)
	admin.Get("/candidates/:id/history", cfg.AdminCandidates.History)
}
