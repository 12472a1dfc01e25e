package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxdesk/internal/amqp"
	"taxdesk/internal/core"
	"taxdesk/internal/metrics"
	"taxdesk/internal/sheets/memory"
	"taxdesk/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.DetailEvent
	err    error
}

func (p *recordingPublisher) PublishDetailEvent(_ context.Context, msg *amqp.DetailEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return p.err
}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, len(p.events))
	for i, e := range p.events {
		keys[i] = e.Event
	}
	return keys
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func rentBody(userID string, amount any) map[string]any {
	return map[string]any{
		"userId":          userID,
		"taxYear":         2025,
		"rentalIncome":    amount,
		"propertyAddress": "House 12, F-7/2, Islamabad",
	}
}

func TestIncomeService_CreatePublishesSavedEvent(t *testing.T) {
	repo := newRepo(t)
	pub := &recordingPublisher{}
	svc := NewIncomeService(repo, pub, metrics.New(), nil)
	ctx := context.Background()

	d, err := svc.Create(ctx, core.CategoryRent, rentBody("u1", "600000"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, []string{amqp.RoutingDetailSaved}, pub.routingKeys())
	assert.Equal(t, d.ID, pub.events[0].DetailID)
	assert.Equal(t, "rent", pub.events[0].Category)

	_, err = svc.Create(ctx, core.CategoryRent, rentBody("u1", "1"))
	var cerr *core.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, d.ID, cerr.ExistingID)
	assert.Len(t, pub.routingKeys(), 1, "rejected writes publish nothing")
}

func TestIncomeService_CreateRejectsInvalidBody(t *testing.T) {
	repo := newRepo(t)
	pub := &recordingPublisher{}
	svc := NewIncomeService(repo, pub, nil, nil)
	ctx := context.Background()

	body := rentBody("u1", "600000")
	delete(body, "propertyAddress")
	_, err := svc.Create(ctx, core.CategoryRent, body)

	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "propertyAddress", verr.Field)
	assert.Empty(t, pub.routingKeys())

	list, err := svc.List(ctx, core.Key{UserID: "u1", TaxYear: 2025})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestIncomeService_PublishFailureDoesNotFailWrite(t *testing.T) {
	repo := newRepo(t)
	pub := &recordingPublisher{err: amqp.ErrCircuitOpen}
	svc := NewIncomeService(repo, pub, metrics.New(), nil)

	d, err := svc.Create(context.Background(), core.CategoryRent, rentBody("u1", 10))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), d.Key(), core.CategoryRent)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
}

func TestIncomeService_UpdateAndDelete(t *testing.T) {
	repo := newRepo(t)
	pub := &recordingPublisher{}
	svc := NewIncomeService(repo, pub, nil, nil)
	ctx := context.Background()
	key := core.Key{UserID: "u1", TaxYear: 2025}

	_, err := svc.Update(ctx, core.CategoryRent, rentBody("u1", 5))
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = svc.Create(ctx, core.CategoryRent, rentBody("u1", 5))
	require.NoError(t, err)
	updated, err := svc.Update(ctx, core.CategoryRent, rentBody("u1", "7.50"))
	require.NoError(t, err)
	assert.True(t, updated.PrimaryAmount().Equal(decimal.RequireFromString("7.5")))

	require.NoError(t, svc.Delete(ctx, key, core.CategoryRent))
	assert.ErrorIs(t, svc.Delete(ctx, key, core.CategoryRent), core.ErrNotFound)
	_, err = svc.Get(ctx, key, core.CategoryRent)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []string{
		amqp.RoutingDetailSaved,
		amqp.RoutingDetailSaved,
		amqp.RoutingDetailDeleted,
	}, pub.routingKeys())
}

func TestSummaryService_UpsertCreatesThenUpdates(t *testing.T) {
	repo := newRepo(t)
	sink := memory.New()
	svc := NewSummaryService(repo, SummaryOptions{Exporter: sink, Metrics: metrics.New()})
	ctx := context.Background()

	first, err := svc.Upsert(ctx, map[string]any{
		"userId":  "u1",
		"taxYear": "2025",
		"amounts": map[string]any{"salary": "1200000", "rent": 300000},
	})
	require.NoError(t, err)
	assert.True(t, first.Created())
	assert.True(t, first.TotalIncome.Equal(decimal.NewFromInt(1500000)))

	// Prime the cache, then make sure the next write is visible.
	_, err = svc.Get(ctx, first.Key())
	require.NoError(t, err)

	second, err := svc.Upsert(ctx, map[string]any{
		"userId":  "u1",
		"taxYear": 2025,
		"amounts": map[string]any{"dividend": "50000"},
	})
	require.NoError(t, err)
	assert.False(t, second.Created())
	assert.Equal(t, first.ID, second.ID)

	got, err := svc.Get(ctx, first.Key())
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Revision)
	assert.True(t, got.TotalIncome.Equal(decimal.NewFromInt(50000)))

	exported, ok := sink.Get(first.Key())
	require.True(t, ok)
	assert.EqualValues(t, 2, exported.Revision)
	assert.Equal(t, 2, sink.Exports())
}

func TestSummaryService_GetMissing(t *testing.T) {
	svc := NewSummaryService(newRepo(t), SummaryOptions{})
	_, err := svc.Get(context.Background(), core.Key{UserID: "nobody", TaxYear: 2025})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSummaryService_RecomputeSumsPrimaryAmounts(t *testing.T) {
	repo := newRepo(t)
	income := NewIncomeService(repo, nil, nil, nil)
	sink := memory.New()
	svc := NewSummaryService(repo, SummaryOptions{Exporter: sink})
	ctx := context.Background()
	key := core.Key{UserID: "u1", TaxYear: 2025}

	_, err := income.Create(ctx, core.CategoryRent, rentBody("u1", "600000"))
	require.NoError(t, err)
	_, err = income.Create(ctx, core.CategorySalary, map[string]any{
		"userId":       "u1",
		"taxYear":      2025,
		"annualSalary": 2400000,
		"taxDeducted":  100000,
	})
	require.NoError(t, err)

	sum, err := svc.Recompute(ctx, key)
	require.NoError(t, err)
	assert.True(t, sum.Amounts[core.CategoryRent].Equal(decimal.NewFromInt(600000)))
	assert.True(t, sum.Amounts[core.CategorySalary].Equal(decimal.NewFromInt(2400000)))
	assert.True(t, sum.TotalIncome.Equal(decimal.NewFromInt(3000000)))

	require.NoError(t, income.Delete(ctx, key, core.CategoryRent))
	sum, err = svc.Recompute(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.Revision)
	assert.True(t, sum.TotalIncome.Equal(decimal.NewFromInt(2400000)))

	list, err := svc.ListByYear(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 2, sink.Exports())
}
