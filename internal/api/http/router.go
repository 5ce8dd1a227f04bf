package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/workflow-service/internal/api/http/handlers"
	"github.com/supportdesk/workflow-service/internal/auth"
	"github.com/supportdesk/workflow-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Users       *handlers.UsersHandler
	Tickets     *handlers.TicketsHandler
	Assignments *handlers.AssignmentsHandler
	Presence    *handlers.PresenceHandler
	Auth        *auth.Middleware
	Metrics     *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", metricsHandler(cfg.Metrics))

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/password/reset/request", cfg.Users.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Users.ConfirmPasswordReset)

	protected := authGroup.Group("", cfg.Auth.Handle, auth.RequireAuthenticated())
	protected.Post("/password/change", cfg.Users.ChangePassword)
	protected.Get("/me", cfg.Users.Me)

	tickets := app.Group("/tickets", cfg.Auth.Handle, auth.RequireAuthenticated())
	tickets.Post("", cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)
	tickets.Post("/:id/rating", cfg.Tickets.Rate)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/time-report", cfg.Tickets.TimeReport)
	tickets.Post("/:id/take", auth.RequireSpecialist(), cfg.Tickets.Take)
	tickets.Post("/:id/assignments", auth.RequireSpecialist(), cfg.Assignments.Create)
	tickets.Get("/:id/assignments", auth.RequireSpecialist(), cfg.Assignments.ListByTicket)

	assignments := app.Group("/assignments", cfg.Auth.Handle, auth.RequireSpecialist())
	assignments.Post("/:id/accept", cfg.Assignments.Accept)
	assignments.Post("/:id/reject", cfg.Assignments.Reject)

	presence := app.Group("/presence", cfg.Auth.Handle, auth.RequireAuthenticated())
	presence.Post("/heartbeat", cfg.Presence.Heartbeat)
	presence.Post("/availability", auth.RequireSpecialist(), cfg.Presence.SetAvailability)
}

func metricsHandler(metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requests, errors, transitions := metrics.Snapshot()
		return c.JSON(fiber.Map{
			"requests":    requests,
			"errors":      errors,
			"transitions": transitions,
		})
	}
}
