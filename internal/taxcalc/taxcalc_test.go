package taxcalc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefaultTableYears(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []int{2024, 2025, 2026}, table.Years())
}

func TestCalculate(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	tests := []struct {
		year   int
		salary string
		tax    string
	}{
		{2025, "0", "0"},
		{2025, "600000", "0"},
		{2025, "1200000", "30000"},
		{2025, "1800000", "120000"},
		{2025, "2200000", "180000"},
		{2025, "3000000", "380000"},
		{2025, "4100000", "700000"},
		{2025, "5000000", "1015000"},
		{2024, "1000000", "10000"},
		{2024, "2400000", "165000"},
		{2024, "7000000", "1445000"},
		{2026, "900000", "3000"},
		{2026, "2500000", "185000"},
	}

	for _, tt := range tests {
		res, err := table.Calculate(tt.year, d(tt.salary))
		require.NoError(t, err)
		assert.True(t, res.AnnualTax.Equal(d(tt.tax)), "TY%d salary %s: got %s want %s", tt.year, tt.salary, res.AnnualTax, tt.tax)
	}
}

func TestCalculateMonthly(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	res, err := table.CalculateMonthly(2025, d("150000"))
	require.NoError(t, err)
	assert.True(t, res.AnnualSalary.Equal(d("1800000")))
	assert.True(t, res.AnnualTax.Equal(d("120000")))
	assert.True(t, res.MonthlyTax.Equal(d("10000")))
	assert.True(t, res.EffectiveRate.Equal(d("0.0667")), "rate %s", res.EffectiveRate)
	assert.True(t, res.Slab.From.Equal(d("1200000")))
}

func TestCalculateErrors(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	_, err = table.Calculate(1999, d("100"))
	assert.ErrorIs(t, err, ErrUnknownTaxYear)

	_, err = table.Calculate(2025, d("-1"))
	assert.Error(t, err)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slabs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
years:
  - taxYear: 2030
    slabs:
      - { from: "100", fixed: "10", rate: "0.5" }
      - { from: "0", fixed: "0", rate: "0.1" }
`), 0600))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2030}, table.Years())

	res, err := table.Calculate(2030, d("200"))
	require.NoError(t, err)
	assert.True(t, res.AnnualTax.Equal(d("60")))

	_, err = Parse([]byte(`years: [{taxYear: 2030, slabs: [{from: "0", fixed: "0", rate: "2"}]}]`))
	assert.Error(t, err)
}
