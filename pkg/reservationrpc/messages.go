package reservationrpc

import "github.com/portwatch/portwatch/pkg/types"

// AcquireRequest reserves (PortfolioID, IssueHour). MonitoredBy defaults to
// the x-operator metadata value.
type AcquireRequest struct {
	PortfolioID string `json:"portfolio_id"`
	IssueHour   int    `json:"issue_hour"`
	MonitoredBy string `json:"monitored_by,omitempty"`
}

type AcquireResponse struct {
	Reservation types.Reservation `json:"reservation"`
}

type ReleaseRequest struct {
	ID string `json:"id"`
}

type ReleaseResponse struct{}

type CheckActiveRequest struct {
	PortfolioID string `json:"portfolio_id"`
	IssueHour   int    `json:"issue_hour"`
}

// CheckActiveResponse carries the holder when Active is true.
type CheckActiveResponse struct {
	Active      bool               `json:"active"`
	Reservation *types.Reservation `json:"reservation,omitempty"`
}

type ListActiveRequest struct{}

type ListActiveResponse struct {
	Reservations []types.Reservation `json:"reservations"`
}
