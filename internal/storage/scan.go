package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"taxdesk/internal/core"
)

// Fixed-width UTC layout so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// sqlTime scans DATETIME columns whether the driver hands back a parsed
// time.Time or the raw text.
type sqlTime struct {
	Time time.Time
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

type scanner interface {
	Scan(dest ...any) error
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(raw), nil
}

// decodeFields restores typed values (decimal amounts, trimmed text) by
// passing the stored bag back through the category schema.
func decodeFields(c core.Category, raw string) (map[string]any, error) {
	schema, ok := core.SchemaFor(c)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownCategory, c)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var bag map[string]any
	if err := dec.Decode(&bag); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return schema.Normalize(bag)
}

func scanDetail(row scanner) (core.IncomeDetail, error) {
	var (
		d                core.IncomeDetail
		category, fields string
		created, updated sqlTime
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.TaxYear, &category, &fields, &created, &updated); err != nil {
		return core.IncomeDetail{}, err
	}
	d.Category = core.Category(category)
	bag, err := decodeFields(d.Category, fields)
	if err != nil {
		return core.IncomeDetail{}, fmt.Errorf("detail %s: %w", d.ID, err)
	}
	d.Fields = bag
	d.CreatedAt, d.UpdatedAt = created.Time, updated.Time
	return d, nil
}

func encodeAmounts(amounts map[core.Category]decimal.Decimal) (string, error) {
	if amounts == nil {
		amounts = map[core.Category]decimal.Decimal{}
	}
	raw, err := json.Marshal(amounts)
	if err != nil {
		return "", fmt.Errorf("encode amounts: %w", err)
	}
	return string(raw), nil
}

func scanSummary(row scanner) (core.IncomeSummary, error) {
	var (
		s                core.IncomeSummary
		amounts, total   string
		created, updated sqlTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.TaxYear, &amounts, &total, &s.Revision, &created, &updated); err != nil {
		return core.IncomeSummary{}, err
	}
	if err := json.Unmarshal([]byte(amounts), &s.Amounts); err != nil {
		return core.IncomeSummary{}, fmt.Errorf("summary %s: decode amounts: %w", s.ID, err)
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return core.IncomeSummary{}, fmt.Errorf("summary %s: decode total: %w", s.ID, err)
	}
	s.TotalIncome = t
	s.CreatedAt, s.UpdatedAt = created.Time, updated.Time
	return s, nil
}
