package domain

import "time"

// TechnicianStatus enumerates live availability states.
type TechnicianStatus string

const (
	TechnicianStatusAvailable TechnicianStatus = "available"
	TechnicianStatusBusy      TechnicianStatus = "busy"
	TechnicianStatusOffline   TechnicianStatus = "offline"
)

// Technician is a field technician eligible for dispatch.
type Technician struct {
	ID          string
	Name        string
	Phone       string
	Status      TechnicianStatus
	Latitude    *float64
	Longitude   *float64
	Skills      []string
	QueueDepth  int
	TerritoryID *string
	Rating      float64
	UpdatedAt   time.Time
}

// HasCoordinates reports whether the technician position is known.
func (t *Technician) HasCoordinates() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// Territory groups neighborhoods served by a technician when live
// coordinates are unavailable.
type Territory struct {
	ID            string
	Name          string
	Neighborhoods []string
}

// Covers reports whether the territory includes the given neighborhood.
func (t *Territory) Covers(neighborhood string) bool {
	if t == nil {
		return false
	}
	for _, n := range t.Neighborhoods {
		if n == neighborhood {
			return true
		}
	}
	return false
}
