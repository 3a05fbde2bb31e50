package apiclient

import (
	"time"

	"github.com/portwatch/portwatch/pkg/types"
)

// Band names as the server reports them, most urgent last.
const (
	BandLogging = "logging"
	BandUpdated = "updated"
	Band1h      = "1h"
	Band2h      = "2h"
	Band3h      = "3h"
	Band4hPlus  = "4h+"
)

// Bands lists every band in display order.
var Bands = []string{BandLogging, BandUpdated, Band1h, Band2h, Band3h, Band4hPlus}

// Hint is one piece of advice attached to a portfolio status.
type Hint struct {
	Key    string `json:"key"`
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// PortfolioStatus is one row of the board.
type PortfolioStatus struct {
	PortfolioID        string     `json:"portfolio_id"`
	Name               string     `json:"name"`
	Label              string     `json:"label"`
	Band               string     `json:"band"`
	Color              string     `json:"color"`
	IsBeingLogged      bool       `json:"is_being_logged"`
	LoggedBy           string     `json:"logged_by"`
	HoursSinceActivity *int       `json:"hours_since_activity"`
	LastActivityAt     *time.Time `json:"last_activity_at"`
	AllSitesChecked    bool       `json:"all_sites_checked"`
	CheckedDetails     string     `json:"checked_details"`
	Locked             bool       `json:"locked"`
	LockedBy           string     `json:"locked_by"`
	Rule               string     `json:"rule"`
	Hints              []Hint     `json:"hints"`
}

// HourCoverage is one hour of a coverage day.
type HourCoverage struct {
	Hour                 int `json:"hour"`
	PortfoliosWithIssues int `json:"portfolios_with_issues"`
	CoveragePercentage   int `json:"coverage_percentage"`
}

// Coverage is one day of hourly coverage.
type Coverage struct {
	Day             string         `json:"day"`
	TotalPortfolios int            `json:"total_portfolios"`
	Hours           []HourCoverage `json:"hours"`
	PeakHours       []int          `json:"peak_hours"`
	PeakCoverage    int            `json:"peak_coverage"`
}

// Summary counts the board by band.
type Summary struct {
	Total       int            `json:"total"`
	Bands       map[string]int `json:"bands"`
	BeingLogged int            `json:"being_logged"`
	Locked      int            `json:"locked"`
	Unchecked   int            `json:"unchecked"`
}

// Health is GET /api/v1/health.
type Health struct {
	State              string    `json:"state"`
	PortfolioCount     int       `json:"portfolio_count"`
	Summary            Summary   `json:"summary"`
	ActiveReservations int       `json:"active_reservations"`
	AlertCount         int       `json:"alert_count"`
	LeaseDuration      string    `json:"lease_duration"`
	CurrentHour        int       `json:"current_hour"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// Snapshot is GET /api/v1/snapshot and the /ws/stream payload.
type Snapshot struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	CurrentHour  int                 `json:"current_hour"`
	Portfolios   []PortfolioStatus   `json:"portfolios"`
	Reservations []types.Reservation `json:"reservations"`
	Summary      Summary             `json:"summary"`
}

// Alert is one firing or recently resolved alert.
type Alert struct {
	ID          string     `json:"id"`
	RuleName    string     `json:"rule_name"`
	PortfolioID string     `json:"portfolio_id"`
	Severity    string     `json:"severity"`
	Message     string     `json:"message"`
	State       string     `json:"state"`
	FiredAt     time.Time  `json:"fired_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// IssueInput is the body of POST /api/v1/issues.
type IssueInput struct {
	PortfolioID    string `json:"portfolio_id"`
	IssueHour      int    `json:"issue_hour"`
	IssuePresent   bool   `json:"issue_present"`
	Details        string `json:"details,omitempty"`
	CaseNumber     string `json:"case_number,omitempty"`
	MonitoredBy    string `json:"monitored_by,omitempty"`
	IssuesMissedBy string `json:"issues_missed_by,omitempty"`
}

type errorBody struct {
	Error     string     `json:"error"`
	Field     string     `json:"field"`
	HeldBy    string     `json:"held_by"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type streamMessage struct {
	Event string   `json:"event"`
	Data  Snapshot `json:"data"`
}
