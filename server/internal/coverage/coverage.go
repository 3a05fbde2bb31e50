// Package coverage summarises, for one calendar day, how many portfolios had
// at least one issue filed against each hour slot.
package coverage

import (
	"math"
	"time"

	"github.com/portwatch/portwatch/pkg/types"
)

// HourCoverage is one hour bucket.
type HourCoverage struct {
	Hour                 int `json:"hour"`
	PortfoliosWithIssues int `json:"portfolios_with_issues"`
	CoveragePercentage   int `json:"coverage_percentage"`
}

// Snapshot is the coverage of every hour of one day.
type Snapshot struct {
	Day             string         `json:"day"`
	TotalPortfolios int            `json:"total_portfolios"`
	Hours           []HourCoverage `json:"hours"`

	// PeakHours lists every hour sharing the highest coverage. It is empty
	// when no hour has any coverage.
	PeakHours    []int `json:"peak_hours"`
	PeakCoverage int   `json:"peak_coverage"`
}

// DayLayout is the format of Snapshot.Day and of day query parameters.
const DayLayout = "2006-01-02"

// DayBounds returns [start, end) of the calendar day containing day in loc.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Aggregate computes the snapshot for the calendar day containing day.
// Only issues whose CreatedAt falls on that day in loc count, bucketed by
// their IssueHour. Issues with an out-of-range hour are skipped. A
// totalPortfolios of zero or less yields zero percent everywhere.
func Aggregate(issues []types.Issue, day time.Time, totalPortfolios int, loc *time.Location) Snapshot {
	start, end := DayBounds(day, loc)

	var seen [types.HoursPerDay]map[string]struct{}
	for _, iss := range issues {
		if !types.ValidIssueHour(iss.IssueHour) {
			continue
		}
		if iss.CreatedAt.Before(start) || !iss.CreatedAt.Before(end) {
			continue
		}
		if seen[iss.IssueHour] == nil {
			seen[iss.IssueHour] = make(map[string]struct{})
		}
		seen[iss.IssueHour][iss.PortfolioID] = struct{}{}
	}

	if totalPortfolios < 0 {
		totalPortfolios = 0
	}
	snap := Snapshot{
		Day:             start.Format(DayLayout),
		TotalPortfolios: totalPortfolios,
		Hours:           make([]HourCoverage, types.HoursPerDay),
		PeakHours:       []int{},
	}
	for h := 0; h < types.HoursPerDay; h++ {
		n := len(seen[h])
		snap.Hours[h] = HourCoverage{
			Hour:                 h,
			PortfoliosWithIssues: n,
			CoveragePercentage:   percent(n, totalPortfolios),
		}
	}

	for _, hc := range snap.Hours {
		if hc.CoveragePercentage > snap.PeakCoverage {
			snap.PeakCoverage = hc.CoveragePercentage
		}
	}
	if snap.PeakCoverage > 0 {
		for _, hc := range snap.Hours {
			if hc.CoveragePercentage == snap.PeakCoverage {
				snap.PeakHours = append(snap.PeakHours, hc.Hour)
			}
		}
	}
	return snap
}

// AggregateRange returns one snapshot per calendar day from the day of from
// through the day of to, inclusive, oldest first.
func AggregateRange(issues []types.Issue, from, to time.Time, totalPortfolios int, loc *time.Location) []Snapshot {
	start, _ := DayBounds(from, loc)
	last, _ := DayBounds(to, loc)

	var out []Snapshot
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, Aggregate(issues, d, totalPortfolios, loc))
	}
	return out
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(total)))
}
