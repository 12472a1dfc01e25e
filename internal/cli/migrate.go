package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"taxdesk/internal/storage"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
		Example: `  taxdeskctl migrate up
  taxdeskctl migrate down --steps 1
  taxdeskctl migrate status --db ./data/taxdesk.db`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.cfg.SQLiteDBPath
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			if err := storage.RunMigrations(path); err != nil {
				return err
			}
			opts.logger.Info("Migrations applied", "db_path", path)
			return printMigrationVersion(cmd, path)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.cfg.SQLiteDBPath
			if err := storage.RollbackMigrations(path, steps); err != nil {
				return err
			}
			opts.logger.Info("Migrations rolled back", "db_path", path, "steps", steps)
			return printMigrationVersion(cmd, path)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.cfg.SQLiteDBPath); err != nil {
				return fmt.Errorf("database not found: %s", opts.cfg.SQLiteDBPath)
			}
			return printMigrationVersion(cmd, opts.cfg.SQLiteDBPath)
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func printMigrationVersion(cmd *cobra.Command, path string) error {
	version, dirty, err := storage.MigrationVersion(path)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	return nil
}
