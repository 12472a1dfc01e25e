package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category identifies one income-detail type a taxpayer reports per tax year.
type Category string

const (
	CategoryAgriculture          Category = "agriculture"
	CategoryBusiness             Category = "business"
	CategoryCommission           Category = "commission"
	CategoryDividend             Category = "dividend"
	CategoryFreelancer           Category = "freelancer"
	CategoryOther                Category = "other"
	CategoryPartnership          Category = "partnership"
	CategoryProfessionalServices Category = "professional-services"
	CategoryProfitOnSavings      Category = "profit-on-savings"
	CategoryPropertySale         Category = "property-sale"
	CategoryRent                 Category = "rent"
	CategorySalary               Category = "salary"
)

type FieldKind int

const (
	KindAmount FieldKind = iota
	KindText
)

func (k FieldKind) String() string {
	switch k {
	case KindAmount:
		return "amount"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Field describes one category-specific attribute of an income detail.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// Schema lists the fields accepted for a category. The first amount field
// is the category's primary amount, the figure aggregated into summaries.
type Schema struct {
	Category Category
	Fields   []Field
}

const maxTextLength = 200

func amount(name string, required bool) Field {
	return Field{Name: name, Kind: KindAmount, Required: required}
}

func text(name string, required bool) Field {
	return Field{Name: name, Kind: KindText, Required: required}
}

var schemas = map[Category]Schema{
	CategorySalary: {CategorySalary, []Field{
		amount("annualSalary", true),
		amount("taxDeducted", false),
		amount("allowances", false),
		text("employerName", false),
		text("employerNtn", false),
	}},
	CategoryBusiness: {CategoryBusiness, []Field{
		amount("grossRevenue", true),
		amount("expenses", true),
		text("businessName", true),
		text("ntn", false),
	}},
	CategoryRent: {CategoryRent, []Field{
		amount("rentalIncome", true),
		text("propertyAddress", true),
		amount("expenses", false),
		amount("taxDeducted", false),
	}},
	CategoryDividend: {CategoryDividend, []Field{
		amount("dividendAmount", true),
		text("companyName", true),
		amount("taxDeducted", false),
	}},
	CategoryAgriculture: {CategoryAgriculture, []Field{
		amount("agricultureIncome", true),
		amount("landArea", true),
		text("location", false),
	}},
	CategoryCommission: {CategoryCommission, []Field{
		amount("commissionAmount", true),
		text("payerName", false),
		amount("taxDeducted", false),
	}},
	CategoryFreelancer: {CategoryFreelancer, []Field{
		amount("freelanceIncome", true),
		text("platform", false),
		text("clientCountry", false),
	}},
	CategoryOther: {CategoryOther, []Field{
		amount("otherIncome", true),
		text("description", false),
	}},
	CategoryPartnership: {CategoryPartnership, []Field{
		amount("shareOfProfit", true),
		text("firmName", false),
		text("firmNtn", false),
	}},
	CategoryProfessionalServices: {CategoryProfessionalServices, []Field{
		amount("professionalIncome", true),
		text("profession", false),
		amount("taxDeducted", false),
	}},
	CategoryProfitOnSavings: {CategoryProfitOnSavings, []Field{
		amount("profitAmount", true),
		text("bankName", false),
		amount("taxDeducted", false),
	}},
	CategoryPropertySale: {CategoryPropertySale, []Field{
		amount("saleProceeds", true),
		amount("purchaseCost", true),
		text("propertyAddress", true),
		amount("holdingPeriodYears", false),
	}},
}

// Categories returns every income-detail category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryAgriculture,
		CategoryBusiness,
		CategoryCommission,
		CategoryDividend,
		CategoryFreelancer,
		CategoryOther,
		CategoryPartnership,
		CategoryProfessionalServices,
		CategoryProfitOnSavings,
		CategoryPropertySale,
		CategoryRent,
		CategorySalary,
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := schemas[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

func (c Category) String() string { return string(c) }

// SchemaFor returns the field schema for c.
func SchemaFor(c Category) (Schema, bool) {
	s, ok := schemas[c]
	return s, ok
}

// PrimaryAmount returns the name of the schema's first amount field.
func (s Schema) PrimaryAmount() string {
	for _, f := range s.Fields {
		if f.Kind == KindAmount {
			return f.Name
		}
	}
	return ""
}

func (s Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Normalize checks raw field values against the schema and returns them
// with amounts as decimal.Decimal and text as trimmed strings. Blank
// optional fields are dropped.
func (s Schema) Normalize(raw map[string]any) (map[string]any, error) {
	for name := range raw {
		if _, ok := s.field(name); !ok {
			return nil, &ValidationError{Field: name, Reason: "unknown field"}
		}
	}

	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v, present := raw[f.Name]
		if !present || isBlank(v) {
			if f.Required {
				return nil, missingField(f.Name)
			}
			continue
		}
		switch f.Kind {
		case KindAmount:
			d, err := ParseAmount(v)
			if err != nil {
				return nil, invalidField(f.Name, err)
			}
			out[f.Name] = d
		case KindText:
			str, ok := v.(string)
			if !ok {
				return nil, &ValidationError{Field: f.Name, Reason: "must be a string"}
			}
			str = strings.TrimSpace(str)
			if len(str) > maxTextLength {
				return nil, &ValidationError{Field: f.Name, Reason: fmt.Sprintf("too long (max %d characters)", maxTextLength)}
			}
			out[f.Name] = str
		}
	}
	return out, nil
}

// Keys that belong to the document envelope rather than the field bag.
// Clients commonly send a fetched document back on update, so these are
// accepted and ignored.
var envelopeKeys = map[string]bool{
	"id":        true,
	"category":  true,
	"createdAt": true,
	"updatedAt": true,
}

// IncomeDetail is one category document for a (user, tax year) pair.
type IncomeDetail struct {
	ID        string
	UserID    string
	TaxYear   int
	Category  Category
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key identifies the owner of per-year records.
type Key struct {
	UserID  string
	TaxYear int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.UserID, k.TaxYear)
}

// ParseKey validates userId and taxYear taken from a body or query string.
func ParseKey(userID, taxYear any) (Key, error) {
	if isBlank(userID) {
		return Key{}, missingField("userId")
	}
	uid, ok := userID.(string)
	if !ok {
		return Key{}, &ValidationError{Field: "userId", Reason: "must be a string"}
	}
	if isBlank(taxYear) {
		return Key{}, missingField("taxYear")
	}
	year, err := ParseTaxYear(taxYear)
	if err != nil {
		return Key{}, invalidField("taxYear", err)
	}
	return Key{UserID: strings.TrimSpace(uid), TaxYear: year}, nil
}

// NewIncomeDetail builds a validated detail for category c from a decoded
// request body holding userId, taxYear and the category fields.
func NewIncomeDetail(c Category, body map[string]any) (IncomeDetail, error) {
	schema, ok := SchemaFor(c)
	if !ok {
		return IncomeDetail{}, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	key, err := ParseKey(body["userId"], body["taxYear"])
	if err != nil {
		return IncomeDetail{}, err
	}

	raw := make(map[string]any, len(body))
	for k, v := range body {
		if k == "userId" || k == "taxYear" || envelopeKeys[k] {
			continue
		}
		raw[k] = v
	}
	fields, err := schema.Normalize(raw)
	if err != nil {
		return IncomeDetail{}, err
	}

	return IncomeDetail{
		UserID:   key.UserID,
		TaxYear:  key.TaxYear,
		Category: c,
		Fields:   fields,
	}, nil
}

func (d IncomeDetail) Key() Key {
	return Key{UserID: d.UserID, TaxYear: d.TaxYear}
}

// Amount returns the named amount field, or zero when unset.
func (d IncomeDetail) Amount(name string) decimal.Decimal {
	if v, ok := d.Fields[name].(decimal.Decimal); ok {
		return v
	}
	return decimal.Zero
}

// PrimaryAmount returns the value aggregated into the income summary.
func (d IncomeDetail) PrimaryAmount() decimal.Decimal {
	schema, ok := SchemaFor(d.Category)
	if !ok {
		return decimal.Zero
	}
	return d.Amount(schema.PrimaryAmount())
}

// MarshalJSON flattens the field bag next to the envelope, matching the
// document shape clients already consume.
func (d IncomeDetail) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+6)
	for k, v := range d.Fields {
		out[k] = v
	}
	out["id"] = d.ID
	out["userId"] = d.UserID
	out["taxYear"] = d.TaxYear
	out["category"] = d.Category
	out["createdAt"] = d.CreatedAt
	out["updatedAt"] = d.UpdatedAt
	return json.Marshal(out)
}
