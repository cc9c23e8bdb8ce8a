package domain

// UnknownDistanceKm is recorded when neither side has coordinates and
// the territory fallback decided the distance component.
const UnknownDistanceKm = 999

// DispatchWeights is the relative weighting policy applied when scoring
// technicians. Weights need not sum to 1.
type DispatchWeights struct {
	Distance float64
	Queue    float64
	Skill    float64
	SLA      float64
}

// DefaultDispatchWeights mirrors the stock policy shipped with the system.
func DefaultDispatchWeights() DispatchWeights {
	return DispatchWeights{Distance: 0.4, Queue: 0.3, Skill: 0.2, SLA: 0.1}
}

// DefaultQueueCeiling is the queue-depth eligibility limit when no
// dispatch rule is configured.
const DefaultQueueCeiling = 5

// DispatchRule is the persisted weight policy; at most one row is active.
type DispatchRule struct {
	ID           string
	Weights      DispatchWeights
	QueueCeiling int
	Active       bool
}

// DispatchScore is the ephemeral fitness of one technician for one
// ticket. Components are 0-100; the total is a weighted sum and is not
// normalized, so custom weight sets can push it outside that range.
type DispatchScore struct {
	TechnicianID string
	DistanceKm   float64
	Distance     float64
	Queue        float64
	Skill        float64
	SLA          float64
	Total        float64
}
