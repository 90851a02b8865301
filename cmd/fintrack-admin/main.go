package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	owner   string
	tz      string
	jsonOut bool

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "fintrack-admin",
		Short:         "Inspect and maintain a fintrack ledger",
		Long:          `fintrack-admin reads summaries and manages categories directly against the configured ledger store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			if opts.tz != "" {
				cfg.LedgerTimezone = opts.tz
				if _, err := time.LoadLocation(opts.tz); err != nil || strings.EqualFold(opts.tz, "local") {
					return fmt.Errorf("unknown time zone %q", opts.tz)
				}
			}
			opts.cfg = cfg
			opts.logger = cli.SetupLogger(cfg, log.ComponentAdmin)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.owner, "owner", "", "owner id the command acts on")
	root.PersistentFlags().StringVar(&opts.tz, "tz", "", "IANA time zone for dates and month buckets (default: LEDGER_TIMEZONE)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")

	root.AddCommand(summaryCmd(opts))
	root.AddCommand(budgetCmd(opts))
	root.AddCommand(categoriesCmd(opts))
	root.AddCommand(migrateCmd(opts))

	return root
}

func main() {
	ctx, stop := cli.SignalContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp opens the ledger, runs fn and closes the ledger again.
func (o *options) withApp(ctx context.Context, fn func(app *cli.App) error) error {
	app, err := cli.NewApp(ctx, o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			o.logger.Warn("Failed to close backend", "error", err)
		}
	}()
	return fn(app)
}

func (o *options) requireOwner() error {
	if strings.TrimSpace(o.owner) == "" {
		return fmt.Errorf("--owner is required")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
