package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taxdesk/internal/config"
	"taxdesk/internal/log"
	"taxdesk/internal/services"
	"taxdesk/internal/storage"
)

var version = "0.1.0"

// rootOptions is populated by the persistent pre-run and shared by every
// subcommand.
type rootOptions struct {
	envFile string
	dbPath  string

	cfg    *config.Config
	logger *log.Logger
}

// NewRootCommand builds the taxdeskctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "taxdeskctl",
		Short: "Administrative commands for the taxdesk backend",
		Long: `taxdeskctl manages a taxdesk deployment from the command line.

It reads the same environment (and .env file) as the API server and the
worker, so SQLITE_DB_PATH, JWT_SECRET, TOKEN_TTL and TAX_SLABS_FILE apply
here too.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load if present")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")

	root.AddCommand(
		newMigrateCommand(opts),
		newTokenCommand(opts),
		newCalcCommand(opts),
		newExportCommand(opts),
		newSummaryCommand(opts),
	)
	return root
}

// Execute runs taxdeskctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *rootOptions) load(cmd *cobra.Command) {
	config.LoadEnvFile(o.envFile)
	o.cfg = config.Load()
	if o.dbPath != "" {
		o.cfg.SQLiteDBPath = o.dbPath
	}
	// Logs go to stderr so command output stays pipeable.
	o.logger = log.New(log.Config{
		Level:     log.ParseLevel(o.cfg.LogLevel),
		Format:    o.cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})
}

func (o *rootOptions) openRepository() (*storage.SQLiteRepository, error) {
	if o.cfg.SQLiteDBPath == "" {
		return nil, fmt.Errorf("no database path: set SQLITE_DB_PATH or --db")
	}
	repo, err := storage.NewSQLiteRepository(o.cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", o.cfg.SQLiteDBPath, err)
	}
	return repo, nil
}

// summaryService builds a summary service without an exporter; admin runs
// never mirror to the configured sink.
func (o *rootOptions) summaryService(repo *storage.SQLiteRepository) *services.SummaryService {
	return services.NewSummaryService(repo, services.SummaryOptions{Logger: o.logger})
}
