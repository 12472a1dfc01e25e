package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryCategoryHasSchemaWithPrimaryAmount(t *testing.T) {
	for _, c := range Categories() {
		schema, ok := SchemaFor(c)
		require.True(t, ok, "missing schema for %s", c)
		assert.NotEmpty(t, schema.PrimaryAmount(), "category %s has no amount field", c)

		f, _ := schema.field(schema.PrimaryAmount())
		assert.True(t, f.Required, "primary amount of %s must be required", c)
	}
	assert.Len(t, schemas, len(Categories()))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Profit-On-Savings ")
	require.NoError(t, err)
	assert.Equal(t, CategoryProfitOnSavings, c)

	_, err = ParseCategory("lottery")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = ParseCategory("income-summary")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestNewIncomeDetail(t *testing.T) {
	body := map[string]any{
		"userId":          "u1",
		"taxYear":         json.Number("2025"),
		"rentalIncome":    json.Number("480000"),
		"propertyAddress": "  House 12, F-7, Islamabad ",
		"expenses":        "",
	}

	d, err := NewIncomeDetail(CategoryRent, body)
	require.NoError(t, err)
	assert.Equal(t, "u1", d.UserID)
	assert.Equal(t, 2025, d.TaxYear)
	assert.Equal(t, "House 12, F-7, Islamabad", d.Fields["propertyAddress"])
	assert.NotContains(t, d.Fields, "expenses")
	assert.True(t, d.PrimaryAmount().Equal(decimal.NewFromInt(480000)))
}

func TestNewIncomeDetailValidation(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			"userId":         "u1",
			"taxYear":        "2025",
			"dividendAmount": json.Number("1000"),
			"companyName":    "Engro",
		}
	}

	cases := []struct {
		name  string
		edit  func(map[string]any)
		field string
	}{
		{"missing userId", func(b map[string]any) { delete(b, "userId") }, "userId"},
		{"blank userId", func(b map[string]any) { b["userId"] = " " }, "userId"},
		{"missing taxYear", func(b map[string]any) { delete(b, "taxYear") }, "taxYear"},
		{"bad taxYear", func(b map[string]any) { b["taxYear"] = "next year" }, "taxYear"},
		{"missing required amount", func(b map[string]any) { delete(b, "dividendAmount") }, "dividendAmount"},
		{"missing required text", func(b map[string]any) { b["companyName"] = nil }, "companyName"},
		{"negative amount", func(b map[string]any) { b["dividendAmount"] = json.Number("-3") }, "dividendAmount"},
		{"text as number", func(b map[string]any) { b["companyName"] = json.Number("7") }, "companyName"},
		{"unknown field", func(b map[string]any) { b["bonus"] = "1" }, "bonus"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := base()
			tc.edit(b)
			_, err := NewIncomeDetail(CategoryDividend, b)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestNewIncomeDetailIgnoresEnvelopeKeys(t *testing.T) {
	d, err := NewIncomeDetail(CategorySalary, map[string]any{
		"id":           "abc",
		"category":     "salary",
		"createdAt":    "2025-01-01T00:00:00Z",
		"userId":       "u1",
		"taxYear":      2025,
		"annualSalary": "1,800,000",
	})
	require.NoError(t, err)
	assert.Empty(t, d.ID)
	assert.True(t, d.Amount("annualSalary").Equal(decimal.NewFromInt(1800000)))
}

func TestIncomeDetailMarshalJSONFlattensFields(t *testing.T) {
	d := IncomeDetail{
		ID:       "d1",
		UserID:   "u1",
		TaxYear:  2025,
		Category: CategoryOther,
		Fields: map[string]any{
			"otherIncome": decimal.RequireFromString("1500.5"),
			"description": "prize bond",
		},
	}

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "d1", got["id"])
	assert.Equal(t, "other", got["category"])
	assert.Equal(t, "1500.5", got["otherIncome"])
	assert.Equal(t, "prize bond", got["description"])
	assert.EqualValues(t, 2025, got["taxYear"])
}
