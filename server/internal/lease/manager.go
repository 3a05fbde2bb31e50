package lease

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/ids"
	"github.com/portwatch/portwatch/server/internal/metrics"
)

// Default timings. The lease must outlast a typical issue form fill while a
// crashed client must not block a slot for long.
const (
	DefaultDuration      = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

// Catalog resolves portfolio ids so acquisitions on unknown portfolios fail
// with types.ErrNotFound. The activity store satisfies it.
type Catalog interface {
	GetPortfolio(ctx context.Context, id string) (types.Portfolio, error)
}

// Manager owns the reservation set.
//
// Manager is safe for concurrent use.
type Manager struct {
	backend Backend
	catalog Catalog
	metrics *metrics.Metrics
	now     types.Clock
	sweep   time.Duration

	mu  sync.RWMutex
	ttl time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(c types.Clock) Option { return func(m *Manager) { m.now = c } }

// WithCatalog enables portfolio existence checks on Acquire.
func WithCatalog(c Catalog) Option { return func(m *Manager) { m.catalog = c } }

// WithMetrics reports acquisitions, releases and sweeps into m.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithSweepInterval sets how often Run evicts expired leases.
func WithSweepInterval(d time.Duration) Option { return func(m *Manager) { m.sweep = d } }

// NewManager returns a Manager over backend granting leases of duration ttl.
// A non-positive ttl selects DefaultDuration.
func NewManager(backend Backend, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultDuration
	}
	m := &Manager{
		backend: backend,
		now:     types.SystemClock,
		sweep:   DefaultSweepInterval,
		ttl:     ttl,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// LeaseDuration returns the duration granted to new and renewed leases.
func (m *Manager) LeaseDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttl
}

// SetLeaseDuration changes the duration for subsequent acquisitions and
// renewals. Existing leases keep their expiry.
func (m *Manager) SetLeaseDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.ttl = d
	m.mu.Unlock()
}

// Acquire reserves (portfolioID, issueHour) for monitoredBy.
//
// It returns a *types.ConflictError when another operator holds an active
// lease on the slot. Re-acquiring a slot the caller already holds extends
// its expiry and keeps the reservation id.
func (m *Manager) Acquire(ctx context.Context, portfolioID string, issueHour int, monitoredBy string) (types.Reservation, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	holder := strings.TrimSpace(monitoredBy)

	if err := validateSlot(portfolioID, issueHour); err != nil {
		m.metrics.ObserveAcquire(metrics.ResultInvalid)
		return types.Reservation{}, err
	}
	if holder == "" {
		m.metrics.ObserveAcquire(metrics.ResultInvalid)
		return types.Reservation{}, types.Invalid("monitored_by", "is required")
	}

	if m.catalog != nil {
		if _, err := m.catalog.GetPortfolio(ctx, portfolioID); err != nil {
			m.metrics.ObserveAcquire(resultFor(err))
			return types.Reservation{}, err
		}
	}

	now := m.now()
	res, outcome, err := m.backend.Acquire(ctx, Request{
		Key:         types.SlotKey{PortfolioID: portfolioID, IssueHour: issueHour},
		MonitoredBy: holder,
		ID:          ids.New(now),
		Now:         now,
		TTL:         m.LeaseDuration(),
	})
	if err != nil {
		m.metrics.ObserveAcquire(resultFor(err))
		if errors.Is(err, types.ErrConflict) {
			slog.Debug("lease: slot already reserved",
				"portfolio", portfolioID, "hour", issueHour, "requested_by", holder, "err", err)
		} else {
			slog.Error("lease: acquire failed",
				"portfolio", portfolioID, "hour", issueHour, "err", err)
		}
		return types.Reservation{}, err
	}

	if outcome == Renewed {
		m.metrics.ObserveAcquire(metrics.ResultRenewed)
	} else {
		m.metrics.ObserveAcquire(metrics.ResultGranted)
	}
	slog.Debug("lease: reserved",
		"id", res.ID,
		"portfolio", portfolioID,
		"hour", issueHour,
		"holder", holder,
		"outcome", outcome.String(),
		"expires_at", res.ExpiresAt,
	)
	return res, nil
}

// Release removes the reservation with the given id. Releasing an unknown or
// expired reservation succeeds.
func (m *Manager) Release(ctx context.Context, reservationID string) error {
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return types.Invalid("id", "is required")
	}
	if err := m.backend.Release(ctx, reservationID); err != nil {
		slog.Error("lease: release failed", "id", reservationID, "err", err)
		return err
	}
	m.metrics.ObserveRelease()
	slog.Debug("lease: released", "id", reservationID)
	return nil
}

// ReleaseSlot releases the lease on key if holder currently owns it. It is
// used when an operator finishes logging the issue the lease was for.
func (m *Manager) ReleaseSlot(ctx context.Context, key types.SlotKey, holder string) error {
	cur, ok, err := m.backend.Lookup(ctx, key, m.now())
	if err != nil {
		return err
	}
	if !ok || cur.MonitoredBy != strings.TrimSpace(holder) {
		return nil
	}
	return m.Release(ctx, cur.ID)
}

// Get returns the active reservation with the given id.
func (m *Manager) Get(ctx context.Context, reservationID string) (types.Reservation, error) {
	res, ok, err := m.backend.Get(ctx, reservationID, m.now())
	if err != nil {
		return types.Reservation{}, err
	}
	if !ok {
		return types.Reservation{}, types.NotFound("reservation", reservationID)
	}
	return res, nil
}

// IsActive reports whether an unexpired lease exists for the slot.
func (m *Manager) IsActive(ctx context.Context, portfolioID string, issueHour int) (bool, error) {
	_, ok, err := m.Holder(ctx, portfolioID, issueHour)
	return ok, err
}

// Holder returns the active lease for the slot, if any.
func (m *Manager) Holder(ctx context.Context, portfolioID string, issueHour int) (types.Reservation, bool, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if err := validateSlot(portfolioID, issueHour); err != nil {
		return types.Reservation{}, false, err
	}
	return m.backend.Lookup(ctx, types.SlotKey{PortfolioID: portfolioID, IssueHour: issueHour}, m.now())
}

// ListActive returns every unexpired lease ordered by portfolio then hour.
func (m *Manager) ListActive(ctx context.Context) ([]types.Reservation, error) {
	out, err := m.backend.List(ctx, m.now())
	if err != nil {
		return nil, err
	}
	m.metrics.SetActive(len(out))
	return out, nil
}

// Sweep evicts every lease expired at the current time.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.backend.Evict(ctx, m.now())
	if err != nil {
		return 0, err
	}
	m.metrics.ObserveEvicted(n)
	return n, nil
}

// Run sweeps expired leases every sweep interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.sweep
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				slog.Warn("lease: sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("lease: evicted expired reservations", "count", n)
			}
		}
	}
}

func validateSlot(portfolioID string, issueHour int) error {
	if portfolioID == "" {
		return types.Invalid("portfolio_id", "is required")
	}
	if !types.ValidIssueHour(issueHour) {
		return types.Invalid("issue_hour", "must be between 0 and 23, got %d", issueHour)
	}
	return nil
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, types.ErrConflict):
		return metrics.ResultConflict
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrNotFound):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}
