package types

import (
	"strings"
	"time"
)

// HoursPerDay is the number of nominal issue-hour slots in a day.
const HoursPerDay = 24

// Portfolio is one monitored portfolio as held by the activity store.
type Portfolio struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// AllSitesChecked is set manually by an operator. While false the
	// portfolio is never shown as recently updated.
	AllSitesChecked bool `json:"all_sites_checked"`

	// CheckedDetails is the reason given when AllSitesChecked was set false.
	CheckedDetails string `json:"checked_details,omitempty"`

	// IsLocked and LockedBy are set by an administrative action outside the
	// engine. Locking is informational only.
	IsLocked bool   `json:"is_locked"`
	LockedBy string `json:"locked_by,omitempty"`
}

// Issue is one ticket logged by an operator against a portfolio.
type Issue struct {
	ID          string `json:"id"`
	PortfolioID string `json:"portfolio_id"`

	// IssueHour is the nominal hour-of-day slot (0-23) the issue is filed
	// against. It is independent of CreatedAt.
	IssueHour int `json:"issue_hour"`

	IssuePresent   bool   `json:"issue_present"`
	Details        string `json:"details,omitempty"`
	CaseNumber     string `json:"case_number,omitempty"`
	MonitoredBy    string `json:"monitored_by,omitempty"`
	IssuesMissedBy string `json:"issues_missed_by,omitempty"`

	// CreatedAt is the wall-clock time the issue was recorded. Immutable.
	CreatedAt time.Time `json:"created_at"`
}

// IssueFilter narrows an issue listing. Zero fields match everything.
// From is inclusive and To is exclusive.
type IssueFilter struct {
	PortfolioID string
	From        time.Time
	To          time.Time
}

// Match reports whether iss passes the filter.
func (f IssueFilter) Match(iss Issue) bool {
	if f.PortfolioID != "" && iss.PortfolioID != f.PortfolioID {
		return false
	}
	if !f.From.IsZero() && iss.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !iss.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// SlotKey identifies a (portfolio, issue hour) pair. At most one active
// reservation may exist per SlotKey.
type SlotKey struct {
	PortfolioID string `json:"portfolio_id"`
	IssueHour   int    `json:"issue_hour"`
}

// Reservation is a time-bounded advisory claim on a slot by one operator.
type Reservation struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	IssueHour   int       `json:"issue_hour"`
	MonitoredBy string    `json:"monitored_by"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Key returns the conflict key of the reservation.
func (r Reservation) Key() SlotKey {
	return SlotKey{PortfolioID: r.PortfolioID, IssueHour: r.IssueHour}
}

// ActiveAt reports whether the lease is still held at now.
// A lease whose ExpiresAt is at or before now is treated as absent.
func (r Reservation) ActiveAt(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// ValidIssueHour reports whether h is a valid nominal issue hour.
func ValidIssueHour(h int) bool {
	return h >= 0 && h < HoursPerDay
}

// Blank reports whether s is empty or only whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
