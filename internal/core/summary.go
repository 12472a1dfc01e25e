package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// IncomeSummary aggregates amounts across income categories for one
// (user, tax year). TotalIncome is always the sum of Amounts.
type IncomeSummary struct {
	ID          string                       `json:"id"`
	UserID      string                       `json:"userId"`
	TaxYear     int                          `json:"taxYear"`
	Amounts     map[Category]decimal.Decimal `json:"amounts"`
	TotalIncome decimal.Decimal              `json:"totalIncome"`
	Revision    int64                        `json:"revision"`
	CreatedAt   time.Time                    `json:"createdAt"`
	UpdatedAt   time.Time                    `json:"updatedAt"`
}

// NewIncomeSummary validates a decoded summary body: userId, taxYear and an
// optional amounts object keyed by category.
func NewIncomeSummary(body map[string]any) (IncomeSummary, error) {
	key, err := ParseKey(body["userId"], body["taxYear"])
	if err != nil {
		return IncomeSummary{}, err
	}

	amounts := make(map[Category]decimal.Decimal)
	switch raw := body["amounts"].(type) {
	case nil:
	case map[string]any:
		for name, v := range raw {
			c, err := ParseCategory(name)
			if err != nil {
				return IncomeSummary{}, &ValidationError{Field: "amounts." + name, Reason: "unknown category"}
			}
			if isBlank(v) {
				continue
			}
			d, err := ParseAmount(v)
			if err != nil {
				return IncomeSummary{}, invalidField("amounts."+name, err)
			}
			amounts[c] = d
		}
	default:
		return IncomeSummary{}, &ValidationError{Field: "amounts", Reason: "must be an object"}
	}

	s := IncomeSummary{UserID: key.UserID, TaxYear: key.TaxYear, Amounts: amounts}
	s.recalculate()
	return s, nil
}

// SummarizeDetails builds the summary for key from the stored details by
// summing each detail's primary amount per category.
func SummarizeDetails(key Key, details []IncomeDetail) (IncomeSummary, error) {
	s := IncomeSummary{
		UserID:  key.UserID,
		TaxYear: key.TaxYear,
		Amounts: make(map[Category]decimal.Decimal, len(details)),
	}
	for _, d := range details {
		if d.Key() != key {
			return IncomeSummary{}, fmt.Errorf("detail %s belongs to %s, not %s", d.ID, d.Key(), key)
		}
		s.Amounts[d.Category] = s.Amounts[d.Category].Add(d.PrimaryAmount())
	}
	s.recalculate()
	return s, nil
}

func (s IncomeSummary) Key() Key {
	return Key{UserID: s.UserID, TaxYear: s.TaxYear}
}

// Created reports whether the last upsert inserted the summary.
func (s IncomeSummary) Created() bool {
	return s.Revision == 1
}

func (s *IncomeSummary) recalculate() {
	total := decimal.Zero
	for _, v := range s.Amounts {
		total = total.Add(v)
	}
	s.TotalIncome = total
}
