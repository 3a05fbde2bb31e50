package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/config"
	"github.com/portwatch/portwatch/server/internal/ids"
	"github.com/portwatch/portwatch/server/internal/metrics"
	"github.com/portwatch/portwatch/server/internal/status"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert is one alert event produced by the rule engine.
type Alert struct {
	ID          string     `json:"id"`
	RuleName    string     `json:"rule_name"`
	PortfolioID string     `json:"portfolio_id"`
	Severity    string     `json:"severity"`
	Message     string     `json:"message"`
	Value       float64    `json:"value"`
	FiredAt     time.Time  `json:"fired_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	State       string     `json:"state"`
}

// Board supplies the classified portfolios. *monitor.Service implements it.
type Board interface {
	Board(ctx context.Context) ([]status.Result, error)
}

// Engine evaluates alert rules against the board and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	metrics *metrics.Metrics
	client  *http.Client
	now     types.Clock

	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:portfolioID"
	lastFire map[string]time.Time // last fire time per key, for cooldown
	history  []*Alert             // recently resolved alerts

	wg sync.WaitGroup
}

// New creates an Engine from the alert configuration. An Engine with no
// rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		metrics:  m,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      types.SystemClock,
	}
}

// SetClock overrides the wall clock.
func (e *Engine) SetClock(c types.Clock) { e.now = c }

// Reload swaps rules and webhooks. Firing alerts of removed rules resolve on
// the next evaluation.
func (e *Engine) Reload(cfg config.AlertsConfig) {
	e.mu.Lock()
	e.rules = cfg.Rules
	e.webhooks = cfg.Webhooks
	e.mu.Unlock()
	slog.Info("alerts: rules reloaded", "rules", len(cfg.Rules), "webhooks", len(cfg.Webhooks))
}

// Evaluate tests every rule against every portfolio. Newly firing alerts are
// stored and delivered; firing alerts whose condition no longer holds are
// resolved and delivered. Webhooks are sent in the background.
func (e *Engine) Evaluate(results []status.Result) {
	now := e.now()

	e.mu.Lock()
	rules := e.rules
	webhooks := e.webhooks
	var outbox []Alert

	seen := make(map[string]bool, len(e.active))
	for _, rule := range rules {
		for _, r := range results {
			key := rule.Name + ":" + r.PortfolioID
			seen[key] = true
			fires, value := evalCondition(rule.Condition, r)

			if fires {
				if a := e.fire(rule, r, key, value, now); a != nil {
					outbox = append(outbox, *a)
				}
				continue
			}
			if a := e.resolve(key, now); a != nil {
				outbox = append(outbox, *a)
			}
		}
	}
	// Rules removed by Reload and portfolios no longer on the board resolve.
	for key := range e.active {
		if !seen[key] {
			if a := e.resolve(key, now); a != nil {
				outbox = append(outbox, *a)
			}
		}
	}
	e.mu.Unlock()

	for i := range outbox {
		a := outbox[i]
		if a.State == StateFiring {
			e.metrics.ObserveAlert(a.RuleName)
			slog.Warn("alerts: fired", "rule", a.RuleName, "portfolio", a.PortfolioID, "value", a.Value, "severity", a.Severity)
		} else {
			slog.Info("alerts: resolved", "rule", a.RuleName, "portfolio", a.PortfolioID)
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.deliver(webhooks, &a)
		}()
	}
}

// fire records a firing alert unless one is already active or the rule is in
// cooldown. Callers hold e.mu.
func (e *Engine) fire(rule config.AlertRule, r status.Result, key string, value float64, now time.Time) *Alert {
	if _, ok := e.active[key]; ok {
		return nil
	}
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
		return nil
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	name := r.Name
	if name == "" {
		name = r.PortfolioID
	}
	a := &Alert{
		ID:          ids.New(now),
		RuleName:    rule.Name,
		PortfolioID: r.PortfolioID,
		Severity:    sev,
		Value:       value,
		Message:     fmt.Sprintf("[%s] %s fired on %s: %s (band %s)", sev, rule.Name, name, rule.Condition, r.Band),
		FiredAt:     now,
		State:       StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	return a
}

// resolve moves an active alert to history. Callers hold e.mu.
func (e *Engine) resolve(key string, now time.Time) *Alert {
	a, ok := e.active[key]
	if !ok {
		return nil
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	return a
}

// Active returns copies of all firing alerts plus alerts resolved within the
// past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.After(out[j].FiredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// FiringCount returns the number of currently firing alerts.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Run evaluates the board every interval until ctx is cancelled, then waits
// for in-flight webhook deliveries.
func (e *Engine) Run(ctx context.Context, board Board, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	defer e.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			results, err := board.Board(ctx)
			if err != nil {
				slog.Warn("alerts: board unavailable, skipping evaluation", "err", err)
				continue
			}
			e.Evaluate(results)
		}
	}
}

// Wait blocks until queued webhook deliveries finish.
func (e *Engine) Wait() { e.wg.Wait() }
