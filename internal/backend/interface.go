// Package backend assembles the storage, messaging, export and service
// components shared by the API server, the worker and the admin CLI.
package backend

import (
	"time"

	"taxdesk/internal/amqp"
	"taxdesk/internal/metrics"
	"taxdesk/internal/services"
	"taxdesk/internal/sheets"
	"taxdesk/internal/storage"
	"taxdesk/internal/taxcalc"
)

// CleanupFunc releases resources held by a Backend.
type CleanupFunc func() error

// Backend is the wired set of components a process serves from.
type Backend struct {
	Repo     *storage.SQLiteRepository
	Events   *amqp.Client // nil when AMQP is not configured
	Exporter sheets.SummaryExporter
	Income   *services.IncomeService
	Summary  *services.SummaryService
	Tax      *taxcalc.Table
	Metrics  *metrics.Metrics
	Cleanup  CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	Exporter                 ExporterType
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	TaxSlabsFile     string
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
}

// ExporterType selects where recomputed summaries are mirrored.
type ExporterType string

const (
	NoExporter     ExporterType = "none"
	MemoryExporter ExporterType = "memory"
	SheetsExporter ExporterType = "sheets"
)

func (t ExporterType) String() string {
	return string(t)
}

func (t ExporterType) IsValid() bool {
	switch t {
	case NoExporter, MemoryExporter, SheetsExporter:
		return true
	default:
		return false
	}
}
