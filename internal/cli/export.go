package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/sheets"
)

const summarySheet = "Summaries"

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		taxYear int
		out     string
	)
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Export a tax year's income summaries to an XLSX workbook",
		Example: `  taxdeskctl export --tax-year 2025 --out summaries-2025.xlsx`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := core.ParseTaxYear(taxYear); err != nil {
				return err
			}
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			list, err := opts.summaryService(repo).ListByYear(cmd.Context(), taxYear)
			if err != nil {
				return err
			}
			if err := writeSummaryWorkbook(out, list); err != nil {
				return err
			}
			opts.logger.Info("Summaries exported", log.FieldTaxYear, taxYear, "rows", len(list), "path", out)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d summaries to %s\n", len(list), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&taxYear, "tax-year", 0, "Tax year to export")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output .xlsx path")
	_ = cmd.MarkFlagRequired("tax-year")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// writeSummaryWorkbook saves one sheet with the shared summary header and a
// row per summary. Amount columns are stored as numbers.
func writeSummaryWorkbook(path string, list []core.IncomeSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := sheets.Header()
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// Amount columns sit between Tax Year and Revision.
	firstAmount, lastAmount := 3, len(header)-2
	for i, s := range list {
		row := sheets.Row(s)
		for c := firstAmount - 1; c < lastAmount; c++ {
			if v, ok := row[c].(string); ok {
				if d, derr := decimal.NewFromString(v); derr == nil {
					row[c] = d.InexactFloat64()
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	from, err := excelize.ColumnNumberToName(firstAmount)
	if err != nil {
		return err
	}
	to, err := excelize.ColumnNumberToName(lastAmount)
	if err != nil {
		return err
	}
	if err := f.SetColStyle(summarySheet, from+":"+to, money); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(summarySheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetPanes(summarySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
