package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

const dayLayout = "2006-01-02"

func (a *app) newCoverageCmd() *cobra.Command {
	var (
		day      string
		from, to string
		days     int
	)

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Show hourly issue coverage",
		Long: `Shows, for each hour of a day, the percentage of portfolios with at least
one recorded issue. Without flags the server's current day is shown.`,
		Example: `  portwatchctl coverage --day 2024-05-01
  portwatchctl coverage --days 7
  portwatchctl coverage --from 2024-04-01 --to 2024-04-30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return errors.New("--days must be positive")
			}
			if days > 0 {
				now := time.Now()
				to = now.Format(dayLayout)
				from = now.AddDate(0, 0, -(days - 1)).Format(dayLayout)
			}

			c, err := a.api()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if from != "" || to != "" {
				if from == "" || to == "" {
					return errors.New("--from and --to must be given together")
				}
				snaps, err := c.CoverageRange(cmd.Context(), from, to)
				if err != nil {
					return err
				}
				printCoverageGrid(out, snaps)
				return nil
			}

			snap, err := c.Coverage(cmd.Context(), day)
			if err != nil {
				return err
			}
			printCoverage(out, snap)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&day, "day", "", "day to show (YYYY-MM-DD)")
	f.StringVar(&from, "from", "", "first day of a range (YYYY-MM-DD)")
	f.StringVar(&to, "to", "", "last day of a range (YYYY-MM-DD)")
	f.IntVar(&days, "days", 0, "show the last N days up to today")
	cmd.MarkFlagsMutuallyExclusive("day", "from")
	cmd.MarkFlagsMutuallyExclusive("day", "days")
	cmd.MarkFlagsMutuallyExclusive("days", "from")
	cmd.MarkFlagsMutuallyExclusive("days", "to")
	return cmd
}
