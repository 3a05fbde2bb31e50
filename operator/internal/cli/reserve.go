package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/portwatch/portwatch/pkg/types"
)

func parseHour(s string) (int, error) {
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %q: must be an integer between 0 and 23", s)
	}
	return h, nil
}

// describeConflict renders a refused reservation the way an operator wants
// to read it.
func describeConflict(err error) error {
	var ce *types.ConflictError
	if !errors.As(err, &ce) {
		return err
	}
	if ce.HeldBy == "" {
		return errors.New("slot is already reserved")
	}
	return fmt.Errorf("slot is held by %s until %s", ce.HeldBy, ce.ExpiresAt.Local().Format(time.TimeOnly))
}

func (a *app) newReserveCmd() *cobra.Command {
	var hold bool

	cmd := &cobra.Command{
		Use:   "reserve <portfolio> <hour>",
		Short: "Reserve a portfolio hour for monitoring",
		Long: `Reserves the (portfolio, hour) slot for the current operator. Running it
again while holding the slot renews the lease.

With --hold the command keeps renewing the lease until interrupted, then
releases it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireOperator(); err != nil {
				return err
			}
			hour, err := parseHour(args[1])
			if err != nil {
				return err
			}
			c, err := a.rpc(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			out := cmd.OutOrStdout()

			if !hold {
				res, err := c.Acquire(cmd.Context(), args[0], hour)
				if err != nil {
					return describeConflict(err)
				}
				printReservation(out, "Reserved", res)
				return nil
			}

			first := true
			err = c.Hold(cmd.Context(), args[0], hour, a.cfg.Hold.RenewInterval, func(res types.Reservation) {
				verb := "Renewed"
				if first {
					verb, first = "Holding", false
				}
				printReservation(out, verb, res)
			})
			if err != nil {
				return describeConflict(err)
			}
			fmt.Fprintln(out, "Released")
			return nil
		},
	}

	cmd.Flags().BoolVar(&hold, "hold", false, "keep renewing until interrupted, then release")
	return cmd
}

func (a *app) newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <reservation-id> | release <portfolio> <hour>",
		Short: "Release a reservation",
		Long: `Releases a reservation by id, or the current operator's reservation on a
(portfolio, hour) slot. Releasing something already gone is not an error.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.rpc(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			out := cmd.OutOrStdout()

			id := args[0]
			if len(args) == 2 {
				hour, err := parseHour(args[1])
				if err != nil {
					return err
				}
				res, active, err := c.Check(cmd.Context(), args[0], hour)
				if err != nil {
					return err
				}
				if !active {
					fmt.Fprintln(out, "No active reservation")
					return nil
				}
				if res.MonitoredBy != a.cfg.Name {
					return fmt.Errorf("reservation is held by %s, not %s", res.MonitoredBy, a.cfg.Name)
				}
				id = res.ID
			}

			if err := c.Release(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(out, "Released %s\n", id)
			return nil
		},
	}
}

func (a *app) newActiveCmd() *cobra.Command {
	var mine bool

	cmd := &cobra.Command{
		Use:   "active",
		Short: "List active reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.rpc(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			rs, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			if mine {
				filtered := rs[:0]
				for _, r := range rs {
					if r.MonitoredBy == a.cfg.Name {
						filtered = append(filtered, r)
					}
				}
				rs = filtered
			}
			printReservations(cmd.OutOrStdout(), rs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&mine, "mine", false, "only show the current operator's reservations")
	return cmd
}

func (a *app) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <portfolio> <hour>",
		Short: "Show whether a slot is reserved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hour, err := parseHour(args[1])
			if err != nil {
				return err
			}
			c, err := a.rpc(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			res, active, err := c.Check(cmd.Context(), args[0], hour)
			if err != nil {
				return err
			}
			if !active {
				fmt.Fprintf(cmd.OutOrStdout(), "%s hour %02d is free\n", args[0], hour)
				return nil
			}
			printReservation(cmd.OutOrStdout(), "Held:", res)
			return nil
		},
	}
}
