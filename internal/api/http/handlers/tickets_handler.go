package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/autonoc/internal/api/dto"
	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/repository"
	"github.com/spec-kit/autonoc/internal/service"
	apperrors "github.com/spec-kit/autonoc/pkg/util"
)

// TicketsHandler exposes ticket queries, manual lifecycle moves, and
// the on-demand diagnosis and dispatch triggers.
type TicketsHandler struct {
	tickets    *service.TicketService
	diagnostic *service.DiagnosticService
	dispatch   *service.DispatchService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, diagnostic *service.DiagnosticService, dispatch *service.DispatchService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, diagnostic: diagnostic, dispatch: dispatch}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(dto.OK(items))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.tickets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	view := dto.TicketDetail{
		TicketSummary:   dto.NewTicketSummary(detail.Ticket),
		ReportedProblem: detail.Ticket.ReportedProblem,
	}
	for i := range detail.Diagnoses {
		view.Diagnoses = append(view.Diagnoses, dto.NewDiagnosisView(&detail.Diagnoses[i]))
	}
	for i := range detail.Observations {
		view.Observations = append(view.Observations, dto.NewObservationView(&detail.Observations[i]))
	}
	return c.JSON(dto.OK(view))
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Create(c.UserContext(), service.TicketCreateInput{
		CustomerID:      req.CustomerID,
		ReportedProblem: req.ReportedProblem,
		Priority:        req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.OK(dto.NewTicketSummary(ticket)))
}

// Diagnose POST /tickets/:id/diagnose.
func (h *TicketsHandler) Diagnose(c *fiber.Ctx) error {
	diagnosis, err := h.diagnostic.Diagnose(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OKMessage("diagnosis completed", dto.NewDiagnosisView(diagnosis)))
}

// Dispatch POST /tickets/:id/dispatch.
func (h *TicketsHandler) Dispatch(c *fiber.Ctx) error {
	result, err := h.dispatch.DispatchAutomatically(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if result == nil {
		return c.JSON(dto.Response{Success: false, Message: "no eligible technician available"})
	}
	return c.JSON(dto.OKMessage("technician assigned", result))
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignTechnicianRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TechnicianID) == "" {
		return apperrors.NewValidationError("technician_id is required", nil)
	}
	result, err := h.dispatch.AssignManual(c.UserContext(), c.Params("id"), req.TechnicianID)
	if err != nil {
		return err
	}
	return c.JSON(dto.OKMessage("technician assigned", result))
}

// Start POST /tickets/:id/start.
func (h *TicketsHandler) Start(c *fiber.Ctx) error {
	ticket, err := h.tickets.Start(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewTicketSummary(ticket)))
}

// Complete POST /tickets/:id/complete.
func (h *TicketsHandler) Complete(c *fiber.Ctx) error {
	ticket, err := h.tickets.Complete(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewTicketSummary(ticket)))
}

// Cancel POST /tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&req)
	ticket, err := h.tickets.Cancel(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewTicketSummary(ticket)))
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if raw := strings.TrimSpace(c.Query("priority")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if customerID := c.Query("customer_id"); customerID != "" {
		filter.CustomerID = &customerID
	}
	if technicianID := c.Query("technician_id"); technicianID != "" {
		filter.TechnicianID = &technicianID
	}
	if neighborhood := c.Query("neighborhood"); neighborhood != "" {
		filter.Neighborhood = &neighborhood
	}
	if c.QueryBool("unassigned") {
		filter.Unassigned = true
	}
	if limit, err := strconv.Atoi(c.Query("limit", "50")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset", "0")); err == nil && offset > 0 {
		filter.Offset = offset
	}
	return filter
}
