package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/portwatch/portwatch/operator/internal/apiclient"
)

func (a *app) newIssueCmd() *cobra.Command {
	var in apiclient.IssueInput

	cmd := &cobra.Command{
		Use:   "issue <portfolio> <hour>",
		Short: "Record the result of monitoring a portfolio hour",
		Long: `Records an issue entry for the (portfolio, hour) slot. Use --present when
something was found. Recording releases the operator's reservation on the slot.`,
		Example: `  portwatchctl issue acme 9
  portwatchctl issue acme 9 --present --details "camera 3 offline" --case CS-1042`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireOperator(); err != nil {
				return err
			}
			hour, err := parseHour(args[1])
			if err != nil {
				return err
			}
			in.PortfolioID = args[0]
			in.IssueHour = hour
			in.MonitoredBy = a.cfg.Name

			c, err := a.api()
			if err != nil {
				return err
			}
			iss, err := c.RecordIssue(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s hour %02d\n", iss.ID, iss.PortfolioID, iss.IssueHour)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&in.IssuePresent, "present", false, "an issue was found")
	f.StringVar(&in.Details, "details", "", "free-text details")
	f.StringVar(&in.CaseNumber, "case", "", "case or ticket number")
	f.StringVar(&in.IssuesMissedBy, "missed-by", "", "operator who missed the issue, if any")
	return cmd
}

func (a *app) newIssuesCmd() *cobra.Command {
	var (
		portfolio string
		since     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List recorded issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			list, err := c.Issues(cmd.Context(), portfolio, from, time.Time{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No issues")
				return nil
			}
			fmt.Fprintf(out, "%-19s %-16s %-4s %-7s %-12s %s\n", "CREATED", "PORTFOLIO", "HOUR", "PRESENT", "BY", "DETAILS")
			for _, iss := range list {
				fmt.Fprintf(out, "%-19s %-16s %02d   %-7t %-12s %s\n",
					iss.CreatedAt.Local().Format(time.DateTime), iss.PortfolioID, iss.IssueHour,
					iss.IssuePresent, iss.MonitoredBy, iss.Details)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&portfolio, "portfolio", "p", "", "only this portfolio")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only issues newer than this (0 for all)")
	return cmd
}
