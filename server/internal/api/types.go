package api

import (
	"time"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/coverage"
	"github.com/portwatch/portwatch/server/internal/status"
)

// ReserveRequest is the body of POST /api/v1/reservations. MonitoredBy
// defaults to the X-Operator header.
type ReserveRequest struct {
	PortfolioID string `json:"portfolio_id"`
	IssueHour   *int   `json:"issue_hour"`
	MonitoredBy string `json:"monitored_by"`
}

// CheckResponse is the payload for GET /api/v1/reservations/check.
type CheckResponse struct {
	PortfolioID string             `json:"portfolio_id"`
	IssueHour   int                `json:"issue_hour"`
	Active      bool               `json:"active"`
	Reservation *types.Reservation `json:"reservation,omitempty"`
}

// StatusResponse is one portfolio in GET /api/v1/portfolios and
// GET /api/v1/portfolios/{id}/status.
type StatusResponse struct {
	status.Result
	Hints []status.Hint `json:"hints"`
}

// CheckedRequest is the body of POST /api/v1/portfolios/{id}/checked.
type CheckedRequest struct {
	AllSitesChecked *bool  `json:"all_sites_checked"`
	Reason          string `json:"reason"`
}

// IssueRequest is the body of POST /api/v1/issues. MonitoredBy defaults to
// the X-Operator header.
type IssueRequest struct {
	PortfolioID    string `json:"portfolio_id"`
	IssueHour      *int   `json:"issue_hour"`
	IssuePresent   bool   `json:"issue_present"`
	Details        string `json:"details"`
	CaseNumber     string `json:"case_number"`
	MonitoredBy    string `json:"monitored_by"`
	IssuesMissedBy string `json:"issues_missed_by"`
}

// CoverageResponse is the payload for a multi-day GET /api/v1/coverage.
type CoverageResponse struct {
	Days []coverage.Snapshot `json:"days"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State              string         `json:"state"`
	PortfolioCount     int            `json:"portfolio_count"`
	Summary            status.Summary `json:"summary"`
	ActiveReservations int            `json:"active_reservations"`
	AlertCount         int            `json:"alert_count"`
	LeaseDuration      string         `json:"lease_duration"`
	CurrentHour        int            `json:"current_hour"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Field is set for validation errors.
	Field string `json:"field,omitempty"`

	// HeldBy and ExpiresAt are set for conflicts.
	HeldBy    string     `json:"held_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
