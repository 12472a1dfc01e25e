package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taxdesk/internal/core"
)

// SQLiteRepository persists income details, summaries and user accounts.
// All methods are safe for concurrent use; writes are serialized through a
// single connection.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// ---- income details ----

const detailColumns = `id, user_id, tax_year, category, fields, created_at, updated_at`

// CreateDetail inserts a new detail. If one already exists for the same
// (user, tax year, category) it returns a *core.ConflictError naming it.
func (r *SQLiteRepository) CreateDetail(ctx context.Context, d core.IncomeDetail) (core.IncomeDetail, error) {
	fields, err := encodeFields(d.Fields)
	if err != nil {
		return core.IncomeDetail{}, err
	}

	now := r.now()
	d.ID = uuid.NewString()
	d.CreatedAt, d.UpdatedAt = now, now

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO income_details (`+detailColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.UserID, d.TaxYear, string(d.Category), fields, formatTime(now), formatTime(now)); err != nil {
			return err
		}
		return markDetailsChanged(ctx, tx, d.Key(), now)
	})
	if err != nil {
		if isUniqueViolation(err) {
			existing, gerr := r.GetDetail(ctx, d.Key(), d.Category)
			if gerr != nil {
				return core.IncomeDetail{}, fmt.Errorf("lookup conflicting detail: %w", gerr)
			}
			return core.IncomeDetail{}, &core.ConflictError{ExistingID: existing.ID}
		}
		return core.IncomeDetail{}, fmt.Errorf("insert income detail: %w", err)
	}

	slog.DebugContext(ctx, "Income detail stored",
		"id", d.ID,
		"user_id", d.UserID,
		"tax_year", d.TaxYear,
		"category", d.Category)

	return d, nil
}

// GetDetail returns core.ErrNotFound when no detail matches.
func (r *SQLiteRepository) GetDetail(ctx context.Context, key core.Key, c core.Category) (core.IncomeDetail, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+detailColumns+` FROM income_details WHERE user_id = ? AND tax_year = ? AND category = ?`,
		key.UserID, key.TaxYear, string(c))
	d, err := scanDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeDetail{}, core.ErrNotFound
	}
	if err != nil {
		return core.IncomeDetail{}, fmt.Errorf("get income detail: %w", err)
	}
	return d, nil
}

// ListDetails returns every category stored for key, ordered by category.
func (r *SQLiteRepository) ListDetails(ctx context.Context, key core.Key) ([]core.IncomeDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+detailColumns+` FROM income_details WHERE user_id = ? AND tax_year = ? ORDER BY category`,
		key.UserID, key.TaxYear)
	if err != nil {
		return nil, fmt.Errorf("list income details: %w", err)
	}
	defer rows.Close()

	var out []core.IncomeDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income detail: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDetail replaces the field bag of an existing detail.
func (r *SQLiteRepository) UpdateDetail(ctx context.Context, d core.IncomeDetail) (core.IncomeDetail, error) {
	fields, err := encodeFields(d.Fields)
	if err != nil {
		return core.IncomeDetail{}, err
	}

	now := r.now()
	var updated core.IncomeDetail
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`UPDATE income_details SET fields = ?, updated_at = ?
			 WHERE user_id = ? AND tax_year = ? AND category = ?
			 RETURNING `+detailColumns,
			fields, formatTime(now), d.UserID, d.TaxYear, string(d.Category))
		var serr error
		if updated, serr = scanDetail(row); serr != nil {
			return serr
		}
		return markDetailsChanged(ctx, tx, d.Key(), now)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeDetail{}, core.ErrNotFound
	}
	if err != nil {
		return core.IncomeDetail{}, fmt.Errorf("update income detail: %w", err)
	}
	return updated, nil
}

// DeleteDetail removes the detail for key and category. The key stays
// marked as changed so reconcile drops the category from its summary.
func (r *SQLiteRepository) DeleteDetail(ctx context.Context, key core.Key, c core.Category) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM income_details WHERE user_id = ? AND tax_year = ? AND category = ?`,
			key.UserID, key.TaxYear, string(c))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrNotFound
		}
		return markDetailsChanged(ctx, tx, key, r.now())
	})
	if errors.Is(err, core.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete income detail: %w", err)
	}
	return nil
}

func markDetailsChanged(ctx context.Context, tx *sql.Tx, key core.Key, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO income_detail_changes (user_id, tax_year, changed_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, tax_year) DO UPDATE SET changed_at = excluded.changed_at`,
		key.UserID, key.TaxYear, formatTime(at))
	if err != nil {
		return fmt.Errorf("mark details changed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ---- income summaries ----

const summaryColumns = `id, user_id, tax_year, amounts, total_income, revision, created_at, updated_at`

// UpsertSummary stores s as the summary for its key in a single statement.
// The returned summary carries the stored revision: 1 when the row was
// inserted, higher when an existing row was replaced.
func (r *SQLiteRepository) UpsertSummary(ctx context.Context, s core.IncomeSummary) (core.IncomeSummary, error) {
	amounts, err := encodeAmounts(s.Amounts)
	if err != nil {
		return core.IncomeSummary{}, err
	}

	now := formatTime(r.now())
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO income_summaries (`+summaryColumns+`)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(user_id, tax_year) DO UPDATE SET
		     amounts = excluded.amounts,
		     total_income = excluded.total_income,
		     revision = income_summaries.revision + 1,
		     updated_at = excluded.updated_at
		 RETURNING `+summaryColumns,
		uuid.NewString(), s.UserID, s.TaxYear, amounts, s.TotalIncome.String(), now, now)

	stored, err := scanSummary(row)
	if err != nil {
		return core.IncomeSummary{}, fmt.Errorf("upsert income summary: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) GetSummary(ctx context.Context, key core.Key) (core.IncomeSummary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM income_summaries WHERE user_id = ? AND tax_year = ?`,
		key.UserID, key.TaxYear)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeSummary{}, core.ErrNotFound
	}
	if err != nil {
		return core.IncomeSummary{}, fmt.Errorf("get income summary: %w", err)
	}
	return s, nil
}

// ListSummaries returns every summary for a tax year ordered by user.
func (r *SQLiteRepository) ListSummaries(ctx context.Context, taxYear int) ([]core.IncomeSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM income_summaries WHERE tax_year = ? ORDER BY user_id`,
		taxYear)
	if err != nil {
		return nil, fmt.Errorf("list income summaries: %w", err)
	}
	defer rows.Close()

	var out []core.IncomeSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StaleSummaryKeys returns keys whose details were created, updated or
// deleted after their summary was last written, or that never had a
// summary at all.
func (r *SQLiteRepository) StaleSummaryKeys(ctx context.Context, limit int) ([]core.Key, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.user_id, c.tax_year
		 FROM income_detail_changes c
		 LEFT JOIN income_summaries s ON s.user_id = c.user_id AND s.tax_year = c.tax_year
		 WHERE s.updated_at IS NULL OR c.changed_at > s.updated_at
		 ORDER BY c.changed_at
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale summaries: %w", err)
	}
	defer rows.Close()

	var keys []core.Key
	for rows.Next() {
		var k core.Key
		if err := rows.Scan(&k.UserID, &k.TaxYear); err != nil {
			return nil, fmt.Errorf("scan stale summary key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ---- users ----

// CreateUser stores u with a fresh id. A taken email yields core.ErrConflict.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = r.now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.queryUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.queryUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) queryUser(ctx context.Context, query string, arg any) (core.User, error) {
	var (
		u       core.User
		created sqlTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = created.Time
	return u, nil
}
