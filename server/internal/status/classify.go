package status

import (
	"time"

	"github.com/portwatch/portwatch/pkg/types"
)

// Band is the severity category shown for a portfolio.
type Band string

const (
	BandLogging Band = "logging"
	BandUpdated Band = "updated"
	Band1h      Band = "1h"
	Band2h      Band = "2h"
	Band3h      Band = "3h"
	Band4hPlus  Band = "4h+"
)

// Bands lists every band in display order.
func Bands() []Band {
	return []Band{BandLogging, BandUpdated, Band1h, Band2h, Band3h, Band4hPlus}
}

// Color returns the display colour for b. Unknown bands are red.
func (b Band) Color() string {
	switch b {
	case BandLogging:
		return "blue"
	case BandUpdated:
		return "green"
	case Band1h:
		return "grey"
	case Band2h:
		return "yellow"
	case Band3h:
		return "orange"
	default:
		return "red"
	}
}

// Label is the short text shown on a heat-map cell for b.
func (b Band) Label() string {
	if b == BandUpdated {
		return "<1h"
	}
	return string(b)
}

// Input is everything Classify looks at.
type Input struct {
	Portfolio types.Portfolio

	// Issues may contain issues of other portfolios; they are ignored.
	Issues []types.Issue

	// Reservations may contain any leases; only an unexpired one on
	// (Portfolio.ID, CurrentHour) counts.
	Reservations []types.Reservation

	Now         time.Time
	CurrentHour int
}

// Result is the classification of one portfolio.
type Result struct {
	PortfolioID string `json:"portfolio_id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Band        Band   `json:"band"`
	Color       string `json:"color"`

	IsBeingLogged bool   `json:"is_being_logged"`
	LoggedBy      string `json:"logged_by,omitempty"`

	// HoursSinceActivity is nil when the portfolio has no issues.
	HoursSinceActivity *int       `json:"hours_since_activity"`
	LastActivityAt     *time.Time `json:"last_activity_at,omitempty"`

	AllSitesChecked bool   `json:"all_sites_checked"`
	CheckedDetails  string `json:"checked_details,omitempty"`

	Locked   bool   `json:"locked"`
	LockedBy string `json:"locked_by,omitempty"`

	// Rule is the name of the rule that decided the band.
	Rule string `json:"rule"`
}

// facts are the values the rules test, computed once per Classify call.
type facts struct {
	in     Input
	lease  *types.Reservation
	latest time.Time
	has    bool
	age    time.Duration
	hours  int
}

func gather(in Input) facts {
	f := facts{in: in}
	for i := range in.Reservations {
		r := in.Reservations[i]
		if r.PortfolioID == in.Portfolio.ID && r.IssueHour == in.CurrentHour && r.ActiveAt(in.Now) {
			f.lease = &r
			break
		}
	}
	for _, iss := range in.Issues {
		if iss.PortfolioID != in.Portfolio.ID {
			continue
		}
		if !f.has || iss.CreatedAt.After(f.latest) {
			f.latest = iss.CreatedAt
			f.has = true
		}
	}
	if f.has {
		f.age = in.Now.Sub(f.latest)
		if f.age < 0 {
			// Clock skew between recorders; treat as just now.
			f.age = 0
		}
		f.hours = int(f.age / time.Hour)
	}
	return f
}

// Classify returns the status of in.Portfolio. The first matching rule in
// the table decides the band and label; the lock overlay is applied last.
func Classify(in Input) Result {
	f := gather(in)

	res := Result{
		PortfolioID:     in.Portfolio.ID,
		Name:            in.Portfolio.Name,
		AllSitesChecked: in.Portfolio.AllSitesChecked,
		CheckedDetails:  in.Portfolio.CheckedDetails,
		Locked:          in.Portfolio.IsLocked,
		LockedBy:        in.Portfolio.LockedBy,
	}
	if f.has {
		h := f.hours
		latest := f.latest
		res.HoursSinceActivity = &h
		res.LastActivityAt = &latest
	}
	if !res.Locked {
		res.LockedBy = ""
	}

	for _, r := range table {
		if r.match(f) {
			r.apply(f, &res)
			res.Rule = r.name
			break
		}
	}
	res.Color = res.Band.Color()
	return res
}

// ClassifyAll classifies every portfolio against one shared issue and lease
// set. Issues are grouped once so each portfolio only scans its own.
func ClassifyAll(portfolios []types.Portfolio, issues []types.Issue, leases []types.Reservation, now time.Time, currentHour int) []Result {
	byPortfolio := make(map[string][]types.Issue, len(portfolios))
	for _, iss := range issues {
		byPortfolio[iss.PortfolioID] = append(byPortfolio[iss.PortfolioID], iss)
	}
	out := make([]Result, 0, len(portfolios))
	for _, p := range portfolios {
		out = append(out, Classify(Input{
			Portfolio:    p,
			Issues:       byPortfolio[p.ID],
			Reservations: leases,
			Now:          now,
			CurrentHour:  currentHour,
		}))
	}
	return out
}

// decay maps whole hours since the last issue to a band. No history and any
// value without an explicit band fall back to 4h+.
func decay(f facts) Band {
	if !f.has {
		return Band4hPlus
	}
	switch f.hours {
	case 1:
		return Band1h
	case 2:
		return Band2h
	case 3:
		return Band3h
	default:
		return Band4hPlus
	}
}
