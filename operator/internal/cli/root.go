package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/portwatch/portwatch/operator/internal/apiclient"
	"github.com/portwatch/portwatch/operator/internal/config"
	"github.com/portwatch/portwatch/operator/internal/rpcclient"
)

const defaultConfigPath = "config.yaml"

// app carries the resolved configuration shared by every subcommand.
type app struct {
	configPath   string
	serverURL    string
	grpcEndpoint string
	operator     string
	noColor      bool

	cfg config.OperatorConfig
}

// NewRootCmd builds the portwatchctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "portwatchctl",
		Short:         "Operator client for portwatch",
		Long:          "portwatchctl shows the portfolio board, reserves monitoring slots and records issues.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to the YAML config file")
	pf.StringVar(&a.serverURL, "server", "", "REST API base URL (overrides operator.server_url)")
	pf.StringVar(&a.grpcEndpoint, "grpc", "", "reservation service host:port (overrides operator.grpc_endpoint)")
	pf.StringVar(&a.operator, "as", "", "operator name (overrides operator.name)")
	pf.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		a.newBoardCmd(),
		a.newStatusCmd(),
		a.newCheckedCmd(),
		a.newReserveCmd(),
		a.newReleaseCmd(),
		a.newActiveCmd(),
		a.newCheckCmd(),
		a.newCoverageCmd(),
		a.newIssueCmd(),
		a.newIssuesCmd(),
		a.newHealthCmd(),
		a.newAlertsCmd(),
		a.newMetricsCmd(),
	)
	return root
}

// Execute runs the command tree with ctx and args.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// load resolves the config file and applies flag overrides. A missing file
// is only an error when --config was given explicitly.
func (a *app) load(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(a.configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return err
	}

	if a.serverURL != "" {
		cfg.Operator.ServerURL = strings.TrimRight(a.serverURL, "/")
	}
	if a.grpcEndpoint != "" {
		cfg.Operator.GRPCEndpoint = a.grpcEndpoint
	}
	if a.operator != "" {
		cfg.Operator.Name = strings.TrimSpace(a.operator)
	}
	a.cfg = cfg.Operator
	return nil
}

func (a *app) api() (*apiclient.Client, error) {
	return apiclient.New(a.cfg)
}

// rpc dials the reservation service. The caller closes the client.
func (a *app) rpc(ctx context.Context) (*rpcclient.Client, error) {
	c, err := rpcclient.Dial(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", a.cfg.GRPCEndpoint, err)
	}
	return c, nil
}

// requireOperator fails commands that write on someone's behalf when no
// operator name could be resolved.
func (a *app) requireOperator() error {
	if a.cfg.Name == "" {
		return errors.New("operator name is not set (use --as or operator.name)")
	}
	return nil
}
