package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"taxdesk/internal/auth"
	"taxdesk/internal/core"
	"taxdesk/internal/sheets"
	"taxdesk/internal/storage"
	"taxdesk/internal/taxcalc"
)

func runCommand(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	args = append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	if db != "" {
		args = append(args, "--db", db)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seededRepository(t *testing.T) (string, *storage.SQLiteRepository) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "taxdesk.db")
	repo, err := storage.NewSQLiteRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return db, repo
}

func TestMigrateCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nested", "taxdesk.db")

	_, err := runCommand(t, db, "migrate", "status")
	require.Error(t, err)

	out, err := runCommand(t, db, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "schema version 2 (clean)\n", out)

	out, err = runCommand(t, db, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = runCommand(t, db, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	out, err = runCommand(t, db, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	_, err = runCommand(t, db, "migrate", "down", "--steps", "0")
	assert.ErrorContains(t, err, "rollback steps must be positive")
}

func TestTokenIssue(t *testing.T) {
	secret := strings.Repeat("k", 32)
	t.Setenv("JWT_SECRET", secret)

	db, repo := seededRepository(t)
	u, err := repo.CreateUser(context.Background(), core.User{Email: "bilal@example.pk", Name: "Bilal", PasswordHash: "x"})
	require.NoError(t, err)

	out, err := runCommand(t, db, "token", "issue", "--email", "Bilal@Example.pk", "--ttl", "15m")
	require.NoError(t, err)

	claims, err := auth.NewJWTManager(secret, time.Hour).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Minute)

	out, err = runCommand(t, db, "token", "issue", "--user-id", u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = runCommand(t, db, "token", "issue", "--email", "nobody@example.pk")
	assert.ErrorContains(t, err, "no such account")

	_, err = runCommand(t, db, "token", "issue", "--email", "a@b.pk", "--user-id", u.ID)
	assert.ErrorContains(t, err, "exactly one of")
}

func TestTokenIssueNeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	db, _ := seededRepository(t)

	_, err := runCommand(t, db, "token", "issue", "--user-id", "u1")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestCalcSalary(t *testing.T) {
	t.Setenv("TAX_SLABS_FILE", "")
	table, err := taxcalc.Default()
	require.NoError(t, err)
	want, err := table.Calculate(2025, decimal.NewFromInt(2400000))
	require.NoError(t, err)

	out, err := runCommand(t, "", "calc", "salary", "--tax-year", "2025", "--monthly", "200000", "--json")
	require.NoError(t, err)
	var got taxcalc.Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, want.AnnualTax.Equal(got.AnnualTax), "annual tax %s != %s", got.AnnualTax, want.AnnualTax)
	assert.True(t, decimal.NewFromInt(2400000).Equal(got.AnnualSalary))

	out, err = runCommand(t, "", "calc", "salary", "--tax-year", "2025", "--annual", "2400000")
	require.NoError(t, err)
	assert.Contains(t, out, "Annual tax:      "+want.AnnualTax.StringFixed(2))

	_, err = runCommand(t, "", "calc", "salary", "--tax-year", "1999", "--annual", "100")
	assert.ErrorIs(t, err, taxcalc.ErrUnknownTaxYear)

	_, err = runCommand(t, "", "calc", "salary", "--tax-year", "2025")
	assert.ErrorContains(t, err, "exactly one of")

	_, err = runCommand(t, "", "calc", "salary", "--tax-year", "2025", "--annual", "lots")
	assert.ErrorContains(t, err, "invalid --annual")
}

func TestExportWritesWorkbook(t *testing.T) {
	db, repo := seededRepository(t)
	ctx := context.Background()
	for _, uid := range []string{"u1", "u2"} {
		_, err := repo.UpsertSummary(ctx, core.IncomeSummary{
			UserID:      uid,
			TaxYear:     2025,
			Amounts:     map[core.Category]decimal.Decimal{core.CategorySalary: decimal.NewFromInt(1500)},
			TotalIncome: decimal.NewFromInt(1500),
		})
		require.NoError(t, err)
	}
	_, err := repo.UpsertSummary(ctx, core.IncomeSummary{UserID: "u3", TaxYear: 2024, Amounts: map[core.Category]decimal.Decimal{}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "summaries.xlsx")
	out, err := runCommand(t, db, "export", "--tax-year", "2025", "--out", path)
	require.NoError(t, err)
	assert.Equal(t, "wrote 2 summaries to "+path+"\n", out)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(summarySheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, sheets.Header(), rows[0])
	assert.ElementsMatch(t, []string{"u1", "u2"}, []string{rows[1][0], rows[2][0]})
	assert.Equal(t, "2025", rows[1][1])

	total := len(sheets.Header()) - 3
	assert.Equal(t, "1500", rows[1][total])

	_, err = runCommand(t, db, "export", "--tax-year", "20", "--out", path)
	assert.ErrorIs(t, err, core.ErrInvalidTaxYear)
}

func TestSummaryCommands(t *testing.T) {
	db, repo := seededRepository(t)
	ctx := context.Background()

	detail := func(uid, salary string) core.IncomeDetail {
		d, err := core.NewIncomeDetail(core.CategorySalary, map[string]any{
			"userId":       uid,
			"taxYear":      2025,
			"annualSalary": salary,
		})
		require.NoError(t, err)
		return d
	}
	_, err := repo.CreateDetail(ctx, detail("u1", "1800000"))
	require.NoError(t, err)

	_, err = runCommand(t, db, "summary", "show", "--user-id", "u1", "--tax-year", "2025")
	assert.ErrorIs(t, err, core.ErrNotFound)

	out, err := runCommand(t, db, "summary", "recompute", "--user-id", "u1", "--tax-year", "2025")
	require.NoError(t, err)
	var sum core.IncomeSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.True(t, sum.TotalIncome.Equal(decimal.NewFromInt(1800000)))
	assert.EqualValues(t, 1, sum.Revision)

	out, err = runCommand(t, db, "summary", "show", "--user-id", "u1", "--tax-year", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, `"userId": "u1"`)

	_, err = repo.CreateDetail(ctx, detail("u2", "900000"))
	require.NoError(t, err)

	out, err = runCommand(t, db, "summary", "reconcile")
	require.NoError(t, err)
	assert.Equal(t, "recomputed 1 summaries\n", out)

	got, err := repo.GetSummary(ctx, core.Key{UserID: "u2", TaxYear: 2025})
	require.NoError(t, err)
	assert.True(t, got.TotalIncome.Equal(decimal.NewFromInt(900000)))
}
