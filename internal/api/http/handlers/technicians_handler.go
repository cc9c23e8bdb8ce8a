package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/autonoc/internal/api/dto"
	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/repository"
	"github.com/spec-kit/autonoc/internal/service"
	apperrors "github.com/spec-kit/autonoc/pkg/util"
)

// TechniciansHandler exposes the roster, ranking suggestions, and route plans.
type TechniciansHandler struct {
	technicians repository.TechnicianRepository
	dispatch    *service.DispatchService
	routes      *service.RouteService
}

// NewTechniciansHandler constructs handler.
func NewTechniciansHandler(technicians repository.TechnicianRepository, dispatch *service.DispatchService, routes *service.RouteService) *TechniciansHandler {
	return &TechniciansHandler{technicians: technicians, dispatch: dispatch, routes: routes}
}

// ListTechnicians GET /technicians.
func (h *TechniciansHandler) ListTechnicians(c *fiber.Ctx) error {
	statuses := []domain.TechnicianStatus{
		domain.TechnicianStatusAvailable,
		domain.TechnicianStatusBusy,
		domain.TechnicianStatusOffline,
	}
	roster, err := h.technicians.ListByStatuses(c.UserContext(), statuses)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.TechnicianView, 0, len(roster))
	for i := range roster {
		items = append(items, dto.NewTechnicianView(&roster[i]))
	}
	return c.JSON(dto.OK(items))
}

// Suggestions GET /tickets/:id/suggestions.
func (h *TechniciansHandler) Suggestions(c *fiber.Ctx) error {
	suggestions, err := h.dispatch.SuggestTechnicians(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(suggestions))
}

// Route GET /technicians/:id/route.
func (h *TechniciansHandler) Route(c *fiber.Ctx) error {
	route, err := h.routes.RouteForTechnician(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(route))
}
