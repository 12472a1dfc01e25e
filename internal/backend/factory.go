package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taxdesk/internal/amqp"
	"taxdesk/internal/cache"
	"taxdesk/internal/log"
	"taxdesk/internal/metrics"
	"taxdesk/internal/services"
	"taxdesk/internal/sheets"
	gsheet "taxdesk/internal/sheets/google"
	"taxdesk/internal/sheets/memory"
	"taxdesk/internal/storage"
	"taxdesk/internal/taxcalc"
)

type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentApp)}
}

// Build opens the store, connects the optional collaborators and wires the
// services. On error nothing is left open.
func (f *Factory) Build(ctx context.Context, config Config) (_ *Backend, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	tax, err := loadTaxTable(config.TaxSlabsFile)
	if err != nil {
		return nil, err
	}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	closers = append(closers, repo.Close)

	// AMQP is optional; without it the worker's reconcile pass picks up
	// changes on its schedule.
	var (
		events    *amqp.Client
		publisher services.EventPublisher
	)
	if config.AMQPURL != "" {
		events, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		closers = append(closers, events.Close)
		publisher = events
		f.logger.Info("Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
	}

	exporter, err := f.newExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	b := &Backend{
		Repo:     repo,
		Events:   events,
		Exporter: exporter,
		Tax:      tax,
		Metrics:  m,
		Income:   services.NewIncomeService(repo, publisher, m, f.logger),
		Summary: services.NewSummaryService(repo, services.SummaryOptions{
			Exporter:  exporter,
			CacheSize: config.SummaryCacheSize,
			CacheTTL:  config.SummaryCacheTTL,
			Metrics:   m,
			Logger:    f.logger,
		}),
	}

	sweepEvery := config.SummaryCacheTTL
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	sweeper := cache.NewManager()
	sweeper.Register(b.Summary.CacheCleaner())
	sweeper.StartCleanup(sweepEvery)
	closers = append(closers, func() error {
		sweeper.Stop()
		return nil
	})

	b.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", events != nil,
		"exporter", config.Exporter.String(),
		"tax_years", tax.Years())
	return b, nil
}

// newExporter returns nil for NoExporter so services skip the export step.
func (f *Factory) newExporter(ctx context.Context, config Config) (sheets.SummaryExporter, error) {
	switch config.Exporter {
	case MemoryExporter:
		return memory.New(), nil
	case SheetsExporter:
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: []byte(config.GoogleServiceAccountJSON),
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
		}
		f.logger.Info("Initialized Google Sheets exporter",
			"spreadsheet_id", config.GoogleSpreadsheetID,
			"sheet", config.GoogleSheetName)
		return client, nil
	default:
		return nil, nil
	}
}

func loadTaxTable(path string) (*taxcalc.Table, error) {
	if path == "" {
		return taxcalc.Default()
	}
	table, err := taxcalc.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load tax slabs %s: %w", path, err)
	}
	return table, nil
}
