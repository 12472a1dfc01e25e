package backend

import (
	"fmt"

	"taxdesk/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	exporter := ExporterType(appConfig.SummaryExport)
	if !exporter.IsValid() {
		return Config{}, fmt.Errorf("invalid summary export in config: %s", appConfig.SummaryExport)
	}

	return Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Exporter:                 exporter,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,

		TaxSlabsFile:     appConfig.TaxSlabsFile,
		SummaryCacheSize: appConfig.SummaryCacheSize,
		SummaryCacheTTL:  appConfig.SummaryCacheTTL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if !c.Exporter.IsValid() {
		return fmt.Errorf("invalid exporter type: %s", c.Exporter)
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when an AMQP URL is set")
	}

	if c.Exporter == SheetsExporter {
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for the sheets exporter")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("service account credentials are required for the sheets exporter")
		}
	}
	return nil
}

// ExporterTypes returns all valid exporter types
func ExporterTypes() []ExporterType {
	return []ExporterType{NoExporter, MemoryExporter, SheetsExporter}
}
