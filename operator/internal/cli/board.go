package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/portwatch/portwatch/operator/internal/apiclient"
)

func (a *app) newBoardCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show every portfolio's status band",
		Long: `Shows the heat-map board: one row per portfolio with its band, hours
since the last recorded issue and who is logging it right now.

With --follow the board is redrawn on every push from the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if follow {
				return c.Stream(cmd.Context(), func(s apiclient.Snapshot) {
					fmt.Fprintf(out, "\n%s  hour %02d\n", s.GeneratedAt.Local().Format(time.DateTime), s.CurrentHour)
					printBoard(out, s.Portfolios)
					printSummary(out, s.Summary)
				})
			}

			rows, err := c.Board(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load board: %w", err)
			}
			printBoard(out, rows)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream board updates until interrupted")
	return cmd
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <portfolio>",
		Short: "Show one portfolio's status and hints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			s, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func (a *app) newCheckedCmd() *cobra.Command {
	var (
		value  bool
		reason string
	)

	cmd := &cobra.Command{
		Use:   "checked <portfolio>",
		Short: "Set whether all of a portfolio's sites have been checked",
		Long: `Sets the all-sites-checked flag. Clearing it requires a reason, which is
shown on the board until the flag is set again.`,
		Example: `  portwatchctl checked acme --value=false --reason "site 4 offline"
  portwatchctl checked acme --value`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			p, err := c.SetChecked(cmd.Context(), args[0], value, reason)
			if err != nil {
				return err
			}
			if p.AllSitesChecked {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: all sites checked\n", p.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: sites unchecked (%s)\n", p.ID, p.CheckedDetails)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&value, "value", true, "new value of the flag")
	cmd.Flags().StringVar(&reason, "reason", "", "why the sites are not all checked (required with --value=false)")
	return cmd
}
