package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"taxdesk/internal/core"
	ports "taxdesk/internal/sheets"
)

// valuesAPI is the slice of the Sheets values resource the exporter uses.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, values [][]any) error
	// Append adds values below the last table row and returns the range
	// that was written.
	Append(ctx context.Context, rng string, values [][]any) (string, error)
}

type serviceValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (v serviceValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(v.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v serviceValues) Update(ctx context.Context, rng string, values [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Update(v.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (v serviceValues) Append(ctx context.Context, rng string, values [][]any) (string, error) {
	resp, err := v.svc.Spreadsheets.Values.Append(v.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", errors.New("append response has no updated range")
	}
	return resp.Updates.UpdatedRange, nil
}

// Options configures the Sheets exporter.
type Options struct {
	SpreadsheetID    string
	SheetName        string
	CredentialsJSON  []byte
	CredentialsFile  string
	RowCacheValidFor time.Duration
}

// Client writes one row per (user, tax year) into a summary sheet, updating
// the row in place on re-export. New keys are appended by the Sheets API
// itself, so processes sharing a sheet never claim the same row.
type Client struct {
	values    valuesAPI
	sheetName string

	mu                 sync.Mutex
	rowIndex           map[core.Key]int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.SummaryExporter = (*Client)(nil)

// New builds a client authenticated with service account credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(serviceValues{svc: svc, spreadsheetID: opts.SpreadsheetID}, opts), nil
}

func newClient(values valuesAPI, opts Options) *Client {
	name := strings.TrimSpace(opts.SheetName)
	if name == "" {
		name = "Summaries"
	}
	ttl := opts.RowCacheValidFor
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		values:             values,
		sheetName:          name,
		cacheValidDuration: ttl,
	}
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsJSON := opts.CredentialsJSON
	if len(credentialsJSON) == 0 {
		if opts.CredentialsFile == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
		}
		raw, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = raw
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) Name() string { return "sheets" }

// Export writes s to its row, appending a new row the first time a key is
// seen. The header row is written when the sheet is empty.
func (c *Client) Export(ctx context.Context, s core.IncomeSummary) error {
	rng, err := c.writeRow(ctx, s.Key(), [][]any{ports.Row(s)})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "Summary exported to Google Sheets",
		"user_id", s.UserID,
		"tax_year", s.TaxYear,
		"range", rng)
	return nil
}

// writeRow updates key's row in place or appends it, returning the range
// written.
func (c *Client) writeRow(ctx context.Context, key core.Key, values [][]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok, err := c.lookupRow(ctx, key)
	if err != nil {
		return "", err
	}

	last := columnName(len(ports.Header()))
	if ok {
		rng := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, last, row)
		if err := c.values.Update(ctx, rng, values); err != nil {
			c.cacheExpiresAt = time.Time{}
			return "", fmt.Errorf("update %s: %w", rng, err)
		}
		return rng, nil
	}

	table := fmt.Sprintf("%s!A:%s", c.sheetName, last)
	written, err := c.values.Append(ctx, table, values)
	if err != nil {
		c.cacheExpiresAt = time.Time{}
		return "", fmt.Errorf("append to %s: %w", table, err)
	}
	if row, err := rangeRow(written); err == nil {
		c.rowIndex[key] = row
	} else {
		c.cacheExpiresAt = time.Time{}
	}
	return written, nil
}

// lookupRow returns key's 1-based row. A miss against a cached index
// rereads the sheet once so rows appended by other processes are found.
// Caller holds c.mu.
func (c *Client) lookupRow(ctx context.Context, key core.Key) (int, bool, error) {
	reloaded := false
	if time.Now().After(c.cacheExpiresAt) {
		if err := c.loadRowIndex(ctx); err != nil {
			return 0, false, err
		}
		reloaded = true
	}
	if row, ok := c.rowIndex[key]; ok {
		return row, true, nil
	}
	if reloaded {
		return 0, false, nil
	}
	if err := c.loadRowIndex(ctx); err != nil {
		return 0, false, err
	}
	row, ok := c.rowIndex[key]
	return row, ok, nil
}

// loadRowIndex reads the key columns and rebuilds the key to row map.
// Caller holds c.mu.
func (c *Client) loadRowIndex(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A:B", c.sheetName)
	values, err := c.values.Get(ctx, rng)
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}

	if len(values) == 0 {
		header := ports.Header()
		hdr := make([]any, len(header))
		for i, h := range header {
			hdr[i] = h
		}
		hrng := fmt.Sprintf("%s!A1:%s1", c.sheetName, columnName(len(header)))
		if err := c.values.Update(ctx, hrng, [][]any{hdr}); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		values = [][]any{hdr}
	}

	c.rowIndex = parseRowIndex(values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return nil
}

// rangeRow extracts the first row number from an A1 range such as
// "Summaries!A5:Q5".
func rangeRow(rng string) (int, error) {
	cell := rng[strings.LastIndex(rng, "!")+1:]
	if i := strings.Index(cell, ":"); i >= 0 {
		cell = cell[:i]
	}
	row, err := strconv.Atoi(strings.TrimLeft(cell, "$ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil {
		return 0, fmt.Errorf("parse range %q: %w", rng, err)
	}
	return row, nil
}

// parseRowIndex maps each (user id, tax year) in columns A and B to its
// 1-based row. The header row and malformed rows are skipped.
func parseRowIndex(values [][]any) map[core.Key]int {
	index := make(map[core.Key]int, len(values))
	for i, row := range values {
		if len(row) < 2 {
			continue
		}
		uid := strings.TrimSpace(fmt.Sprint(row[0]))
		year, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(row[1])))
		if uid == "" || err != nil {
			continue
		}
		index[core.Key{UserID: uid, TaxYear: year}] = i + 1
	}
	return index
}

// columnName converts a 1-based column number to its A1 letters.
func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}
