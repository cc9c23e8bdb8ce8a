package domain

import "time"

// Customer is a fiber/PPPoE subscriber synced from the billing system.
type Customer struct {
	ID           string
	ExternalID   *string
	Name         string
	Contract     string
	Address      string
	Neighborhood string
	City         string
	Phone        string
	Plan         string
	Latitude     *float64
	Longitude    *float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCoordinates reports whether the customer location is geocoded.
func (c *Customer) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}
