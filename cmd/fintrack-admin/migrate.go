package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/storage"
	"fintrack/internal/storage/postgres"
)

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch opts.cfg.DataBackend {
			case "sqlite":
				if err := storage.RunMigrations(opts.cfg.SQLiteDBPath); err != nil {
					return err
				}
				v, dirty, err := storage.MigrationVersion(opts.cfg.SQLiteDBPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "SQLite schema at version %d (dirty=%t): %s\n", v, dirty, opts.cfg.SQLiteDBPath)
			case "postgres":
				if err := postgres.RunMigrations(opts.cfg.DatabaseURL); err != nil {
					return err
				}
				fmt.Fprintln(out, "Postgres schema up to date")
			default:
				return fmt.Errorf("backend %q has no schema", opts.cfg.DataBackend)
			}
			return nil
		},
	}
}
