package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/competition-hub-api/internal/config"
	"github.com/noah-isme/competition-hub-api/internal/handler"
	"github.com/noah-isme/competition-hub-api/internal/middleware"
	"github.com/noah-isme/competition-hub-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CompetitionHandler  *handler.CompetitionHandler
	ApplicationHandler  *handler.ApplicationHandler
	NotificationHandler *handler.NotificationHandler
	EventsHandler       *handler.EventsHandler
	JWTMiddleware       fiber.Handler
	SubmissionLimiter   fiber.Handler
	HealthProbes        []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	identity := middleware.RequireIdentity()

	if deps.CompetitionHandler != nil || deps.ApplicationHandler != nil {
		competitions := api.Group("/competitions", jwtMiddleware, identity)

		if deps.ApplicationHandler != nil {
			var guards []fiber.Handler
			if deps.SubmissionLimiter != nil {
				guards = append(guards, deps.SubmissionLimiter)
			}
			deps.ApplicationHandler.RegisterCompetitionRoutes(competitions, guards...)
		}
		if deps.CompetitionHandler != nil {
			deps.CompetitionHandler.Register(competitions)
		}
	}

	if deps.ApplicationHandler != nil {
		applications := api.Group("/applications", jwtMiddleware, identity)
		deps.ApplicationHandler.Register(applications)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware, identity)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.EventsHandler != nil {
		events := api.Group("/events", jwtMiddleware, identity)
		deps.EventsHandler.Register(events)
	}
}
