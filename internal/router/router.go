package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-reading-api/internal/config"
	"github.com/noah-isme/gema-reading-api/internal/handler"
	"github.com/noah-isme/gema-reading-api/internal/middleware"
	"github.com/noah-isme/gema-reading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExerciseHandler   *handler.ExerciseHandler
	SubmissionHandler *handler.SubmissionHandler
	ReviewHandler     *handler.ReviewHandler
	JWTMiddleware     fiber.Handler
	// IngestLimiter throttles the AI-backed authoring routes when set.
	IngestLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	protected := []fiber.Handler{jwtMiddleware, middleware.RequireUser()}

	if deps.ExerciseHandler != nil {
		exercises := api.Group("/exercises", protected...)
		if deps.IngestLimiter != nil {
			exercises.Use("/upload", deps.IngestLimiter)
			exercises.Use("/generate", deps.IngestLimiter)
		}
		deps.ExerciseHandler.Register(exercises)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions", protected...))
	}

	if deps.ReviewHandler != nil {
		deps.ReviewHandler.Register(api.Group("/reviews", protected...))
	}
}
