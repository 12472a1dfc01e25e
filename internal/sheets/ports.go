package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"taxdesk/internal/core"
)

// SummaryExporter publishes an income summary to an outbound sink. Export
// must be idempotent per (user, tax year): exporting again replaces the
// previous copy.
type SummaryExporter interface {
	Export(ctx context.Context, s core.IncomeSummary) error
	Name() string
}

// Header is the column layout shared by every tabular sink.
func Header() []string {
	cats := core.Categories()
	h := make([]string, 0, len(cats)+5)
	h = append(h, "User ID", "Tax Year")
	for _, c := range cats {
		h = append(h, string(c))
	}
	return append(h, "Total Income", "Revision", "Updated At")
}

// Row renders s in Header order. Amounts are plain decimal strings so
// spreadsheet sinks parse them as numbers.
func Row(s core.IncomeSummary) []any {
	cats := core.Categories()
	row := make([]any, 0, len(cats)+5)
	row = append(row, s.UserID, s.TaxYear)
	for _, c := range cats {
		v, ok := s.Amounts[c]
		if !ok {
			v = decimal.Zero
		}
		row = append(row, v.StringFixed(core.AmountPlaces))
	}
	updated := ""
	if !s.UpdatedAt.IsZero() {
		updated = s.UpdatedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return append(row, s.TotalIncome.StringFixed(core.AmountPlaces), s.Revision, updated)
}
