// Package taxcalc computes salaried-individual income tax from per-year
// slab tables.
package taxcalc

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"taxdesk/internal/core"
)

//go:embed slabs.yaml
var defaultSlabs []byte

var ErrUnknownTaxYear = errors.New("no tax slabs for tax year")

// Slab taxes income above From at Rate on top of Fixed.
type Slab struct {
	From  decimal.Decimal `json:"from"`
	Fixed decimal.Decimal `json:"fixed"`
	Rate  decimal.Decimal `json:"rate"`
}

type slabFile struct {
	Years []struct {
		TaxYear int `yaml:"taxYear"`
		Slabs   []struct {
			From  string `yaml:"from"`
			Fixed string `yaml:"fixed"`
			Rate  string `yaml:"rate"`
		} `yaml:"slabs"`
	} `yaml:"years"`
}

// Table holds the slabs of every known tax year, each sorted by From.
type Table struct {
	years map[int][]Slab
}

// Default returns the embedded table.
func Default() (*Table, error) {
	return Parse(defaultSlabs)
}

// Load reads a table from path, or the embedded one when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tax slabs: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var f slabFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tax slabs: %w", err)
	}

	t := &Table{years: make(map[int][]Slab, len(f.Years))}
	for _, y := range f.Years {
		if len(y.Slabs) == 0 {
			return nil, fmt.Errorf("tax year %d: no slabs", y.TaxYear)
		}
		if _, dup := t.years[y.TaxYear]; dup {
			return nil, fmt.Errorf("tax year %d: defined twice", y.TaxYear)
		}
		slabs := make([]Slab, 0, len(y.Slabs))
		for i, s := range y.Slabs {
			from, err1 := decimal.NewFromString(s.From)
			fixed, err2 := decimal.NewFromString(s.Fixed)
			rate, err3 := decimal.NewFromString(s.Rate)
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("tax year %d slab %d: %w", y.TaxYear, i, err)
			}
			if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
				return nil, fmt.Errorf("tax year %d slab %d: rate %s out of range", y.TaxYear, i, rate)
			}
			slabs = append(slabs, Slab{From: from, Fixed: fixed, Rate: rate})
		}
		sort.Slice(slabs, func(i, j int) bool { return slabs[i].From.LessThan(slabs[j].From) })
		t.years[y.TaxYear] = slabs
	}
	return t, nil
}

// Years lists the tax years the table covers in ascending order.
func (t *Table) Years() []int {
	years := make([]int, 0, len(t.years))
	for y := range t.years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func (t *Table) Slabs(taxYear int) ([]Slab, bool) {
	s, ok := t.years[taxYear]
	return s, ok
}

// Result is the tax due on one annual salary.
type Result struct {
	TaxYear       int             `json:"taxYear"`
	AnnualSalary  decimal.Decimal `json:"annualSalary"`
	AnnualTax     decimal.Decimal `json:"annualTax"`
	MonthlyTax    decimal.Decimal `json:"monthlyTax"`
	EffectiveRate decimal.Decimal `json:"effectiveRate"`
	Slab          Slab            `json:"slab"`
}

// Calculate applies the highest slab whose From the salary exceeds.
func (t *Table) Calculate(taxYear int, annualSalary decimal.Decimal) (Result, error) {
	slabs, ok := t.years[taxYear]
	if !ok {
		return Result{}, fmt.Errorf("%w %d", ErrUnknownTaxYear, taxYear)
	}
	if annualSalary.IsNegative() {
		return Result{}, core.ErrInvalidAmount
	}

	applied := slabs[0]
	for _, s := range slabs {
		if annualSalary.GreaterThan(s.From) {
			applied = s
		}
	}

	tax := decimal.Zero
	if annualSalary.GreaterThan(applied.From) {
		tax = applied.Fixed.Add(applied.Rate.Mul(annualSalary.Sub(applied.From)))
	}
	tax = tax.Round(core.AmountPlaces)

	rate := decimal.Zero
	if annualSalary.IsPositive() {
		rate = tax.Div(annualSalary).Round(4)
	}

	return Result{
		TaxYear:       taxYear,
		AnnualSalary:  annualSalary,
		AnnualTax:     tax,
		MonthlyTax:    tax.Div(decimal.NewFromInt(12)).Round(core.AmountPlaces),
		EffectiveRate: rate,
		Slab:          applied,
	}, nil
}

// CalculateMonthly annualizes a monthly salary before applying slabs.
func (t *Table) CalculateMonthly(taxYear int, monthlySalary decimal.Decimal) (Result, error) {
	return t.Calculate(taxYear, monthlySalary.Mul(decimal.NewFromInt(12)))
}
