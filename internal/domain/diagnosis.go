package domain

import "time"

// ProblemType is the closed taxonomy a reported problem is classified into.
type ProblemType string

const (
	ProblemNoInternet   ProblemType = "no_internet"
	ProblemSlow         ProblemType = "slow"
	ProblemIntermittent ProblemType = "intermittent"
	ProblemWifi         ProblemType = "wifi"
	ProblemAuth         ProblemType = "auth"
	ProblemIncident     ProblemType = "incident"
)

// ValidProblemType reports whether the value belongs to the taxonomy.
func ValidProblemType(v string) bool {
	switch ProblemType(v) {
	case ProblemNoInternet, ProblemSlow, ProblemIntermittent, ProblemWifi, ProblemAuth, ProblemIncident:
		return true
	}
	return false
}

// Decision is the ternary outcome of a diagnostic run.
type Decision string

const (
	DecisionResolveRemote    Decision = "resolver_remoto"
	DecisionDispatch         Decision = "despachar_tecnico"
	DecisionInstructCustomer Decision = "orientar_cliente"
)

// ValidDecision reports whether the value is one of the three decisions.
func ValidDecision(v string) bool {
	switch Decision(v) {
	case DecisionResolveRemote, DecisionDispatch, DecisionInstructCustomer:
		return true
	}
	return false
}

// TestStatus is the outcome of a single connectivity test.
type TestStatus string

const (
	TestStatusSuccess TestStatus = "success"
	TestStatusWarning TestStatus = "warning"
	TestStatusError   TestStatus = "error"
	TestStatusPending TestStatus = "pending"
)

// Names of the fixed battery of connectivity tests, in execution order.
const (
	TestConnectionStatus   = "Connection Status"
	TestRegionalIncident   = "Regional Incident"
	TestInstabilityHistory = "Instability History"
	TestPingLatency        = "Ping/Latency"
)

// TestResult is one immutable entry of a diagnostic run.
type TestResult struct {
	Name      string     `json:"name"`
	Status    TestStatus `json:"status"`
	Detail    string     `json:"detail"`
	Timestamp time.Time  `json:"timestamp"`
}

// Classification is the structured result of problem classification.
type Classification struct {
	Type       ProblemType
	Confidence float64
	Keywords   []string
}

// Diagnosis is the persisted outcome of one diagnostic run. A ticket
// keeps its full diagnosis history; only the latest row stays active.
type Diagnosis struct {
	ID          string
	TicketID    string
	ProblemType ProblemType
	Decision    Decision
	Report      string
	Confidence  float64
	Tests       []TestResult
	Active      bool
	CreatedAt   time.Time
}
