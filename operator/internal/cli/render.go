package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/portwatch/portwatch/operator/internal/apiclient"
	"github.com/portwatch/portwatch/pkg/types"
)

// bandColor maps a band to its terminal colour. Orange has no ANSI base
// colour, so magenta stands in for it.
func bandColor(band string) *color.Color {
	switch band {
	case apiclient.BandLogging:
		return color.New(color.FgHiBlue, color.Bold)
	case apiclient.BandUpdated:
		return color.New(color.FgHiGreen)
	case apiclient.Band1h:
		return color.New(color.FgHiBlack)
	case apiclient.Band2h:
		return color.New(color.FgYellow)
	case apiclient.Band3h:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func hoursText(h *int) string {
	if h == nil {
		return "never"
	}
	return strconv.Itoa(*h) + "h"
}

func printBoard(w io.Writer, rows []apiclient.PortfolioStatus) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No portfolios")
		return
	}
	fmt.Fprintf(w, "%-16s %-6s %-8s %-12s %s\n", "PORTFOLIO", "BAND", "SINCE", "LOGGED BY", "NOTES")
	for _, r := range rows {
		notes := make([]string, 0, 2)
		if !r.AllSitesChecked {
			n := "sites unchecked"
			if r.CheckedDetails != "" {
				n += ": " + r.CheckedDetails
			}
			notes = append(notes, n)
		}
		if r.Locked {
			notes = append(notes, "locked by "+r.LockedBy)
		}
		band := bandColor(r.Band).Sprintf("%-6s", r.Band)
		fmt.Fprintf(w, "%-16s %s %-8s %-12s %s\n",
			r.PortfolioID, band, hoursText(r.HoursSinceActivity), r.LoggedBy, strings.Join(notes, "; "))
	}
}

func printSummary(w io.Writer, s apiclient.Summary) {
	parts := make([]string, 0, len(apiclient.Bands))
	for _, b := range apiclient.Bands {
		parts = append(parts, bandColor(b).Sprintf("%s=%d", b, s.Bands[b]))
	}
	fmt.Fprintf(w, "%d portfolios: %s\n", s.Total, strings.Join(parts, " "))
}

func printStatus(w io.Writer, s apiclient.PortfolioStatus) {
	name := s.PortfolioID
	if s.Name != "" && s.Name != s.PortfolioID {
		name += " (" + s.Name + ")"
	}
	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  Band:      %s  %s\n", bandColor(s.Band).Sprint(s.Band), s.Label)
	fmt.Fprintf(w, "  Activity:  %s\n", hoursText(s.HoursSinceActivity))
	if s.LastActivityAt != nil {
		fmt.Fprintf(w, "  Last:      %s\n", s.LastActivityAt.Local().Format(time.DateTime))
	}
	if s.IsBeingLogged {
		fmt.Fprintf(w, "  Logged by: %s\n", s.LoggedBy)
	}
	fmt.Fprintf(w, "  Checked:   %t\n", s.AllSitesChecked)
	if s.Locked {
		fmt.Fprintf(w, "  Locked by: %s\n", s.LockedBy)
	}
	for _, h := range s.Hints {
		marker := color.New(color.FgCyan).Sprint("-")
		switch h.Level {
		case "warning":
			marker = color.New(color.FgYellow).Sprint("!")
		case "critical":
			marker = color.New(color.FgRed, color.Bold).Sprint("!")
		}
		fmt.Fprintf(w, "  %s %s: %s\n", marker, h.Title, h.Detail)
	}
}

func printReservation(w io.Writer, verb string, r types.Reservation) {
	fmt.Fprintf(w, "%s %s hour %02d for %s until %s (id %s)\n",
		verb, r.PortfolioID, r.IssueHour, r.MonitoredBy, r.ExpiresAt.Local().Format(time.TimeOnly), r.ID)
}

func printReservations(w io.Writer, rs []types.Reservation) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "No active reservations")
		return
	}
	fmt.Fprintf(w, "%-16s %-4s %-12s %-9s %s\n", "PORTFOLIO", "HOUR", "HELD BY", "EXPIRES", "ID")
	for _, r := range rs {
		fmt.Fprintf(w, "%-16s %02d   %-12s %-9s %s\n",
			r.PortfolioID, r.IssueHour, r.MonitoredBy, r.ExpiresAt.Local().Format(time.TimeOnly), r.ID)
	}
}

// coverageCell colours a percentage on a five-step scale.
func coverageCell(pct int) string {
	var c *color.Color
	switch {
	case pct == 0:
		c = color.New(color.FgHiBlack)
	case pct < 25:
		c = color.New(color.FgRed)
	case pct < 50:
		c = color.New(color.FgYellow)
	case pct < 75:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgHiGreen, color.Bold)
	}
	return c.Sprintf("%3d", pct)
}

func printCoverage(w io.Writer, c apiclient.Coverage) {
	fmt.Fprintf(w, "%s  %d portfolios\n", c.Day, c.TotalPortfolios)
	for _, h := range c.Hours {
		fmt.Fprintf(w, "  %02d:00 %s%%  (%d)\n", h.Hour, coverageCell(h.CoveragePercentage), h.PortfoliosWithIssues)
	}
	if len(c.PeakHours) == 0 {
		fmt.Fprintln(w, "  peak: none")
		return
	}
	peaks := make([]string, 0, len(c.PeakHours))
	for _, h := range c.PeakHours {
		peaks = append(peaks, fmt.Sprintf("%02d", h))
	}
	fmt.Fprintf(w, "  peak: %s at %d%%\n", strings.Join(peaks, ","), c.PeakCoverage)
}

// printCoverageGrid renders several days as one row per day and one column
// per hour.
func printCoverageGrid(w io.Writer, days []apiclient.Coverage) {
	fmt.Fprintf(w, "%-10s", "DAY")
	for h := 0; h < 24; h++ {
		fmt.Fprintf(w, " %3d", h)
	}
	fmt.Fprintln(w, "  PEAK")
	for _, d := range days {
		fmt.Fprintf(w, "%-10s", d.Day)
		for _, h := range d.Hours {
			fmt.Fprintf(w, " %s", coverageCell(h.CoveragePercentage))
		}
		fmt.Fprintf(w, "  %d%%\n", d.PeakCoverage)
	}
}
