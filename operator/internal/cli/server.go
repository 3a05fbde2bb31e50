package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/portwatch/portwatch/operator/internal/promscrape"
)

func (a *app) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			state := color.New(color.FgGreen).Sprint(h.State)
			if h.State != "ok" {
				state = color.New(color.FgRed).Sprint(h.State)
			}
			fmt.Fprintf(out, "State:          %s\n", state)
			fmt.Fprintf(out, "Current hour:   %02d\n", h.CurrentHour)
			fmt.Fprintf(out, "Lease duration: %s\n", h.LeaseDuration)
			fmt.Fprintf(out, "Reservations:   %d\n", h.ActiveReservations)
			fmt.Fprintf(out, "Alerts firing:  %d\n", h.AlertCount)
			printSummary(out, h.Summary)
			return nil
		},
	}
}

func (a *app) newAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List firing and recently resolved alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			list, err := c.Alerts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No alerts")
				return nil
			}
			for _, al := range list {
				sev := color.New(color.FgYellow).Sprint(al.Severity)
				if al.Severity == "critical" {
					sev = color.New(color.FgRed, color.Bold).Sprint(al.Severity)
				}
				fmt.Fprintf(out, "[%s] %-8s %s %s: %s (since %s)\n",
					sev, al.State, al.RuleName, al.PortfolioID, al.Message, al.FiredAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func (a *app) newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Summarize the server's Prometheus counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			mfs, err := c.Metrics(cmd.Context())
			if err != nil {
				return err
			}
			s := promscrape.Summarize(mfs)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Active reservations: %.0f\n", s.ActiveReservations)
			fmt.Fprintf(out, "Releases:            %.0f\n", s.Releases)
			fmt.Fprintf(out, "Evictions:           %.0f\n", s.Evictions)
			fmt.Fprintf(out, "WebSocket clients:   %.0f\n", s.WSClients)
			fmt.Fprintf(out, "HTTP requests:       %.0f (%.0f 5xx)\n", s.HTTPRequests, s.HTTPServerErrors)
			printCounts(cmd, "Acquisitions", s.Acquisitions)
			printCounts(cmd, "Classifications", s.Classifications)
			printCounts(cmd, "Degraded operations", s.Degraded)
			printCounts(cmd, "Alerts fired", s.AlertsFired)
			return nil
		},
	}
}

func printCounts(cmd *cobra.Command, title string, m map[string]float64) {
	if len(m) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	for _, k := range promscrape.SortedKeys(m) {
		fmt.Fprintf(out, "  %-14s %.0f\n", k, m[k])
	}
}
