package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"taxdesk/internal/core"
	"taxdesk/internal/taxcalc"
)

func newCalcCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Tax calculators",
	}

	var (
		taxYear    int
		annual     string
		monthly    string
		jsonOutput bool
	)
	salary := &cobra.Command{
		Use:   "salary",
		Short: "Compute income tax on a salary",
		Long: `Salary applies the slab table for --tax-year (the embedded table, or
TAX_SLABS_FILE when set) to an annual or monthly salary.`,
		Example: `  taxdeskctl calc salary --tax-year 2025 --annual 2400000
  taxdeskctl calc salary --tax-year 2025 --monthly 150000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (annual == "") == (monthly == "") {
				return errors.New("exactly one of --annual or --monthly is required")
			}
			table, err := taxcalc.Load(opts.cfg.TaxSlabsFile)
			if err != nil {
				return err
			}

			var result taxcalc.Result
			if annual != "" {
				amount, perr := core.ParseAmount(annual)
				if perr != nil {
					return fmt.Errorf("invalid --annual %q", annual)
				}
				result, err = table.Calculate(taxYear, amount)
			} else {
				amount, perr := core.ParseAmount(monthly)
				if perr != nil {
					return fmt.Errorf("invalid --monthly %q", monthly)
				}
				result, err = table.CalculateMonthly(taxYear, amount)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintf(out, "Tax year:        %d\n", result.TaxYear)
			fmt.Fprintf(out, "Annual salary:   %s\n", result.AnnualSalary.StringFixed(2))
			fmt.Fprintf(out, "Annual tax:      %s\n", result.AnnualTax.StringFixed(2))
			fmt.Fprintf(out, "Monthly tax:     %s\n", result.MonthlyTax.StringFixed(2))
			fmt.Fprintf(out, "Effective rate:  %s%%\n", result.EffectiveRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
			fmt.Fprintf(out, "Slab:            above %s, %s fixed + %s%%\n",
				result.Slab.From.StringFixed(0),
				result.Slab.Fixed.StringFixed(0),
				result.Slab.Rate.Mul(decimal.NewFromInt(100)).String())
			return nil
		},
	}
	salary.Flags().IntVar(&taxYear, "tax-year", 0, "Tax year")
	salary.Flags().StringVar(&annual, "annual", "", "Annual salary")
	salary.Flags().StringVar(&monthly, "monthly", "", "Monthly salary")
	salary.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = salary.MarkFlagRequired("tax-year")

	cmd.AddCommand(salary)
	return cmd
}
