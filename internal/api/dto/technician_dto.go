package dto

import "github.com/spec-kit/autonoc/internal/domain"

// TechnicianView is the API projection of a technician.
type TechnicianView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	QueueDepth  int      `json:"queue_depth"`
	Skills      []string `json:"skills,omitempty"`
	Rating      float64  `json:"rating"`
	TerritoryID *string  `json:"territory_id,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// NewTechnicianView maps a domain technician.
func NewTechnicianView(t *domain.Technician) TechnicianView {
	return TechnicianView{
		ID:          t.ID,
		Name:        t.Name,
		Status:      string(t.Status),
		QueueDepth:  t.QueueDepth,
		Skills:      t.Skills,
		Rating:      t.Rating,
		TerritoryID: t.TerritoryID,
		Latitude:    t.Latitude,
		Longitude:   t.Longitude,
	}
}
