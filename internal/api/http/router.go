package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/autonoc/internal/api/http/handlers"
	"github.com/spec-kit/autonoc/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Tickets     *handlers.TicketsHandler
	Technicians *handlers.TechniciansHandler
	Worker      *handlers.WorkerHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(observability.Registry, promhttp.HandlerOpts{})))

	tickets := app.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/diagnose", cfg.Tickets.Diagnose)
	tickets.Post("/:id/dispatch", cfg.Tickets.Dispatch)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Get("/:id/suggestions", cfg.Technicians.Suggestions)
	tickets.Post("/:id/start", cfg.Tickets.Start)
	tickets.Post("/:id/complete", cfg.Tickets.Complete)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)

	technicians := app.Group("/technicians")
	technicians.Get("/", cfg.Technicians.ListTechnicians)
	technicians.Get("/:id/route", cfg.Technicians.Route)

	app.Get("/worker", cfg.Worker.RunOrList)
	app.Post("/worker", cfg.Worker.Run)
}
