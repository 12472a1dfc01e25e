package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxdesk/internal/config"
	"taxdesk/internal/core"
	"taxdesk/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	app := &config.Config{SQLiteDBPath: "x.db", SummaryExport: "memory", SummaryCacheSize: 8}
	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, MemoryExporter, cfg.Exporter)
	assert.Equal(t, 8, cfg.SummaryCacheSize)

	app.SummaryExport = "ftp"
	_, err = FromAppConfig(app)
	assert.ErrorContains(t, err, "invalid summary export")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"minimal", Config{SQLiteDBPath: "a.db", Exporter: NoExporter}, ""},
		{"no db", Config{Exporter: NoExporter}, "database path"},
		{"bad exporter", Config{SQLiteDBPath: "a.db", Exporter: "s3"}, "invalid exporter"},
		{"amqp without queue", Config{SQLiteDBPath: "a.db", Exporter: NoExporter, AMQPURL: "amqp://x", AMQPExchange: "e"}, "exchange and queue"},
		{"sheets without id", Config{SQLiteDBPath: "a.db", Exporter: SheetsExporter, GoogleServiceAccountJSON: "{}"}, "Spreadsheet ID"},
		{"sheets without creds", Config{SQLiteDBPath: "a.db", Exporter: SheetsExporter, GoogleSpreadsheetID: "id"}, "credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
	assert.Len(t, ExporterTypes(), 3)
}

func TestBuildWiresServices(t *testing.T) {
	b, err := NewFactory(nil).Build(context.Background(), Config{
		SQLiteDBPath: filepath.Join(t.TempDir(), "backend.db"),
		Exporter:     MemoryExporter,
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Cleanup()) }()

	assert.Nil(t, b.Events)
	assert.Equal(t, []int{2024, 2025, 2026}, b.Tax.Years())

	ctx := context.Background()
	_, err = b.Income.Create(ctx, core.CategoryOther, map[string]any{
		"userId": "u1", "taxYear": 2025, "otherIncome": "1000", "description": "prize bond",
	})
	require.NoError(t, err)

	sum, err := b.Summary.Recompute(ctx, core.Key{UserID: "u1", TaxYear: 2025})
	require.NoError(t, err)
	assert.Equal(t, "1000", sum.TotalIncome.String())

	store, ok := b.Exporter.(*memory.Store)
	require.True(t, ok)
	assert.Equal(t, 1, store.Exports())
}

func TestBuildNoExporterAndBadSlabs(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFactory(nil).Build(context.Background(), Config{
		SQLiteDBPath: filepath.Join(dir, "a.db"),
		Exporter:     NoExporter,
	})
	require.NoError(t, err)
	assert.Nil(t, b.Exporter)
	require.NoError(t, b.Cleanup())

	_, err = NewFactory(nil).Build(context.Background(), Config{
		SQLiteDBPath: filepath.Join(dir, "b.db"),
		Exporter:     NoExporter,
		TaxSlabsFile: filepath.Join(dir, "missing.yaml"),
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "load tax slabs"))
}
