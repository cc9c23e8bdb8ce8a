package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/domain"
	"github.com/spec-kit/autonoc/internal/geo"
	"github.com/spec-kit/autonoc/internal/repository"
	apperrors "github.com/spec-kit/autonoc/pkg/util"
)

// Stop is one visit on a technician's route.
type Stop struct {
	TicketID     string                `json:"ticket_id"`
	TicketNumber string                `json:"ticket_number"`
	CustomerName string                `json:"customer_name"`
	Address      string                `json:"address"`
	Neighborhood string                `json:"neighborhood"`
	Priority     domain.TicketPriority `json:"priority"`
	Latitude     *float64              `json:"latitude,omitempty"`
	Longitude    *float64              `json:"longitude,omitempty"`
	LegKm        float64               `json:"leg_km"`
}

// Route is the ordered visit plan for one technician.
type Route struct {
	TechnicianID   string    `json:"technician_id"`
	TechnicianName string    `json:"technician_name"`
	Stops          []Stop    `json:"stops"`
	TotalKm        float64   `json:"total_km"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// RouteService orders a technician's open visits by travel distance.
type RouteService struct {
	tickets     repository.TicketRepository
	customers   repository.CustomerRepository
	technicians repository.TechnicianRepository
	logger      *zap.Logger
	now         func() time.Time
}

// RouteDependencies bundles collaborators.
type RouteDependencies struct {
	TicketRepo     repository.TicketRepository
	CustomerRepo   repository.CustomerRepository
	TechnicianRepo repository.TechnicianRepository
	Logger         *zap.Logger
	Now            func() time.Time
}

// NewRouteService creates the service.
func NewRouteService(deps RouteDependencies) *RouteService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteService{
		tickets:     deps.TicketRepo,
		customers:   deps.CustomerRepo,
		technicians: deps.TechnicianRepo,
		logger:      logger,
		now:         now,
	}
}

func stopDistance(from geo.Point, stop Stop) float64 {
	// A stop without geometry costs nothing to reach, which floats it
	// to the front of the remaining set. Routing by address lookup
	// would fix this but needs a geocoder.
	if stop.Latitude == nil || stop.Longitude == nil {
		return 0
	}
	return geo.DistanceKm(from, geo.Point{Lat: *stop.Latitude, Lon: *stop.Longitude})
}

// SequenceStops orders stops greedily by nearest neighbor from the
// starting point. The input slice is not modified.
func SequenceStops(start *geo.Point, stops []Stop) []Stop {
	if len(stops) <= 1 {
		out := make([]Stop, len(stops))
		copy(out, stops)
		return out
	}

	remaining := make([]Stop, len(stops))
	copy(remaining, stops)
	ordered := make([]Stop, 0, len(stops))

	var current geo.Point
	hasCurrent := start != nil
	if hasCurrent {
		current = *start
	} else if remaining[0].Latitude != nil && remaining[0].Longitude != nil {
		// No starting point: anchor on the first stop with geometry.
		current = geo.Point{Lat: *remaining[0].Latitude, Lon: *remaining[0].Longitude}
		hasCurrent = true
	}

	for len(remaining) > 0 {
		bestIdx := 0
		if hasCurrent {
			bestDist := stopDistance(current, remaining[0])
			for i := 1; i < len(remaining); i++ {
				if d := stopDistance(current, remaining[i]); d < bestDist {
					bestDist = d
					bestIdx = i
				}
			}
			remaining[bestIdx].LegKm = bestDist
		}

		next := remaining[bestIdx]
		ordered = append(ordered, next)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		if next.Latitude != nil && next.Longitude != nil {
			current = geo.Point{Lat: *next.Latitude, Lon: *next.Longitude}
			hasCurrent = true
		}
	}
	return ordered
}

// RouteForTechnician builds the sequenced route over the technician's
// dispatched and in-progress tickets, starting from the technician's
// last known position.
func (s *RouteService) RouteForTechnician(ctx context.Context, technicianID string) (*Route, error) {
	tech, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	open, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		TechnicianID: &technicianID,
		Statuses:     []domain.TicketStatus{domain.TicketStatusDispatched, domain.TicketStatusInProgress},
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stops := make([]Stop, 0, len(open))
	for _, ticket := range open {
		customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
		if err != nil {
			s.logger.Warn("skipping stop without customer", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		stops = append(stops, Stop{
			TicketID:     ticket.ID,
			TicketNumber: ticket.Number,
			CustomerName: customer.Name,
			Address:      customer.Address,
			Neighborhood: customer.Neighborhood,
			Priority:     ticket.Priority,
			Latitude:     customer.Latitude,
			Longitude:    customer.Longitude,
		})
	}

	var start *geo.Point
	if tech.HasCoordinates() {
		start = &geo.Point{Lat: *tech.Latitude, Lon: *tech.Longitude}
	}

	ordered := SequenceStops(start, stops)
	total := 0.0
	for _, stop := range ordered {
		total += stop.LegKm
	}

	return &Route{
		TechnicianID:   tech.ID,
		TechnicianName: tech.Name,
		Stops:          ordered,
		TotalKm:        total,
		GeneratedAt:    s.now(),
	}, nil
}
