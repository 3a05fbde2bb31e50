package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/coverage"
	"github.com/portwatch/portwatch/server/internal/lease"
	"github.com/portwatch/portwatch/server/internal/metrics"
	"github.com/portwatch/portwatch/server/internal/status"
	"github.com/portwatch/portwatch/server/internal/store"
)

// IssueRecorder is implemented by stores that accept new issues.
type IssueRecorder interface {
	CreateIssue(ctx context.Context, iss types.Issue) (types.Issue, error)
}

// Service is the monitoring state engine.
type Service struct {
	store    store.ActivityStore
	recorder IssueRecorder
	leases   *lease.Manager
	metrics  *metrics.Metrics
	now      types.Clock
	loc      *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(c types.Clock) Option { return func(s *Service) { s.now = c } }

// WithLocation sets the zone used for the current hour and day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMetrics reports band counts and degraded reads into m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// New returns a Service. If st also implements IssueRecorder, RecordIssue is
// enabled.
func New(st store.ActivityStore, leases *lease.Manager, opts ...Option) *Service {
	s := &Service{
		store:  st,
		leases: leases,
		now:    types.SystemClock,
		loc:    time.UTC,
	}
	if r, ok := st.(IssueRecorder); ok {
		s.recorder = r
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Leases returns the underlying lease manager.
func (s *Service) Leases() *lease.Manager { return s.leases }

// Location returns the zone used for hours and days.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current time in the service's zone.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// CurrentHour returns the hour-of-day slot in progress.
func (s *Service) CurrentHour() int { return s.Now().Hour() }

// StatusFor classifies a single portfolio.
func (s *Service) StatusFor(ctx context.Context, portfolioID string) (status.Result, error) {
	p, err := s.store.GetPortfolio(ctx, strings.TrimSpace(portfolioID))
	if err != nil {
		return status.Result{}, err
	}
	issues, err := s.store.ListIssues(ctx, types.IssueFilter{PortfolioID: p.ID})
	if err != nil {
		return status.Result{}, err
	}

	now := s.Now()
	hour := now.Hour()
	var leases []types.Reservation
	if res, ok, err := s.leases.Holder(ctx, p.ID, hour); err != nil {
		s.degraded("reservations", err)
	} else if ok {
		leases = []types.Reservation{res}
	}

	r := status.Classify(status.Input{
		Portfolio:    p,
		Issues:       issues,
		Reservations: leases,
		Now:          now,
		CurrentHour:  hour,
	})
	s.metrics.ObserveBand(string(r.Band))
	return r, nil
}

// Board classifies every portfolio.
func (s *Service) Board(ctx context.Context) ([]status.Result, error) {
	results, _, err := s.board(ctx)
	return results, err
}

func (s *Service) board(ctx context.Context) ([]status.Result, []types.Reservation, error) {
	portfolios, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, nil, err
	}
	issues, err := s.store.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		return nil, nil, err
	}
	leases, err := s.leases.ListActive(ctx)
	if err != nil {
		s.degraded("reservations", err)
		leases = nil
	}

	now := s.Now()
	results := status.ClassifyAll(portfolios, issues, leases, now, now.Hour())
	for _, r := range results {
		s.metrics.ObserveBand(string(r.Band))
	}
	return results, leases, nil
}

// Snapshot is the full board state pushed to dashboards.
type Snapshot struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	CurrentHour  int                 `json:"current_hour"`
	Portfolios   []status.Result     `json:"portfolios"`
	Reservations []types.Reservation `json:"reservations"`
	Summary      status.Summary      `json:"summary"`
}

// Snapshot classifies every portfolio and bundles the active reservations.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	results, leases, err := s.board(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if leases == nil {
		leases = []types.Reservation{}
	}
	now := s.Now()
	return Snapshot{
		GeneratedAt:  now.UTC(),
		CurrentHour:  now.Hour(),
		Portfolios:   results,
		Reservations: leases,
		Summary:      status.Summarize(results),
	}, nil
}

// SetAllSitesChecked records the manual review flag. A false value requires
// a reason; a true value clears any previous reason.
func (s *Service) SetAllSitesChecked(ctx context.Context, portfolioID string, value bool, reason string) (types.Portfolio, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	reason = strings.TrimSpace(reason)
	if portfolioID == "" {
		return types.Portfolio{}, types.Invalid("portfolio_id", "is required")
	}
	if !value && reason == "" {
		return types.Portfolio{}, types.Invalid("reason", "is required when not all sites are checked")
	}
	if value {
		reason = ""
	}

	if err := s.store.UpdatePortfolioChecked(ctx, portfolioID, value, reason); err != nil {
		return types.Portfolio{}, err
	}
	slog.Info("monitor: review flag updated",
		"portfolio", portfolioID,
		"all_sites_checked", value,
		"reason", reason,
		"by", OperatorFrom(ctx),
	)
	return s.store.GetPortfolio(ctx, portfolioID)
}

// Coverage aggregates the calendar day containing day.
func (s *Service) Coverage(ctx context.Context, day time.Time) (coverage.Snapshot, error) {
	snaps, err := s.CoverageRange(ctx, day, day)
	if err != nil {
		return coverage.Snapshot{}, err
	}
	return snaps[0], nil
}

// CoverageRange aggregates every day from the day of from to the day of to.
func (s *Service) CoverageRange(ctx context.Context, from, to time.Time) ([]coverage.Snapshot, error) {
	if to.Before(from) {
		return nil, types.Invalid("to", "must not be before from")
	}
	portfolios, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	start, _ := coverage.DayBounds(from, s.loc)
	_, end := coverage.DayBounds(to, s.loc)
	issues, err := s.store.ListIssues(ctx, types.IssueFilter{From: start, To: end})
	if err != nil {
		return nil, err
	}
	return coverage.AggregateRange(issues, from, to, len(portfolios), s.loc), nil
}

// ParseDay parses a YYYY-MM-DD day in the service's zone. An empty string
// means today.
func (s *Service) ParseDay(v string) (time.Time, error) {
	if v == "" {
		return s.Now(), nil
	}
	d, err := time.ParseInLocation(coverage.DayLayout, v, s.loc)
	if err != nil {
		return time.Time{}, types.Invalid("day", "must be YYYY-MM-DD")
	}
	return d, nil
}

// ListIssues passes through to the store.
func (s *Service) ListIssues(ctx context.Context, f types.IssueFilter) ([]types.Issue, error) {
	return s.store.ListIssues(ctx, f)
}

// RecordIssue stores iss and releases the recorder's lease on the slot, if
// any. MonitoredBy defaults to the operator in ctx.
func (s *Service) RecordIssue(ctx context.Context, iss types.Issue) (types.Issue, error) {
	if s.recorder == nil {
		return types.Issue{}, types.Unavailable("monitor: record issue", errors.New("store is read-only"))
	}
	if types.Blank(iss.MonitoredBy) {
		iss.MonitoredBy = OperatorFrom(ctx)
	}
	iss.MonitoredBy = strings.TrimSpace(iss.MonitoredBy)
	iss.CreatedAt = s.now()

	created, err := s.recorder.CreateIssue(ctx, iss)
	if err != nil {
		return types.Issue{}, err
	}

	if created.MonitoredBy != "" {
		key := types.SlotKey{PortfolioID: created.PortfolioID, IssueHour: created.IssueHour}
		if err := s.leases.ReleaseSlot(ctx, key, created.MonitoredBy); err != nil {
			// The issue is stored; the lease will expire on its own.
			slog.Warn("monitor: release after record failed", "portfolio", key.PortfolioID, "hour", key.IssueHour, "err", err)
		}
	}
	slog.Info("monitor: issue recorded",
		"id", created.ID,
		"portfolio", created.PortfolioID,
		"hour", created.IssueHour,
		"by", created.MonitoredBy,
	)
	return created, nil
}

func (s *Service) degraded(op string, err error) {
	s.metrics.ObserveDegraded(op)
	slog.Warn("monitor: degraded read, continuing without reservations", "op", op, "err", err)
}
