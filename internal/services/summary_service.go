package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taxdesk/internal/cache"
	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/metrics"
	"taxdesk/internal/sheets"
)

// Sources of a summary write, used in logs and metrics.
const (
	SourceClient    = "client"
	SourceRecompute = "recompute"
)

type SummaryStore interface {
	UpsertSummary(ctx context.Context, s core.IncomeSummary) (core.IncomeSummary, error)
	GetSummary(ctx context.Context, key core.Key) (core.IncomeSummary, error)
	ListSummaries(ctx context.Context, taxYear int) ([]core.IncomeSummary, error)
	ListDetails(ctx context.Context, key core.Key) ([]core.IncomeDetail, error)
}

// SummaryService owns the income summary: the atomic upsert, cached reads,
// recomputation from stored details, and export to the configured sink.
type SummaryService struct {
	store    SummaryStore
	exporter sheets.SummaryExporter
	cache    *cache.Loader[core.IncomeSummary]
	metrics  *metrics.Metrics
	logger   *log.Logger
}

type SummaryOptions struct {
	Exporter  sheets.SummaryExporter
	CacheSize int
	CacheTTL  time.Duration
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

func NewSummaryService(store SummaryStore, opts SummaryOptions) *SummaryService {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	lru := cache.NewLRUCache[core.IncomeSummary](opts.CacheSize, opts.CacheTTL)
	s := &SummaryService{
		store:    store,
		exporter: opts.Exporter,
		cache:    cache.NewLoader(lru),
		metrics:  opts.Metrics,
		logger:   opts.Logger.WithComponent(log.ComponentSummary),
	}
	if s.metrics != nil {
		s.metrics.RegisterCacheStats("summary", func() (uint64, uint64, int) {
			st := s.cache.Stats()
			return st.Hits, st.Misses, st.Size
		})
	}
	return s
}

// Upsert validates body and stores it as the complete summary for its
// key. The returned summary's Created reports whether it was new.
func (s *SummaryService) Upsert(ctx context.Context, body map[string]any) (core.IncomeSummary, error) {
	sum, err := core.NewIncomeSummary(body)
	if err != nil {
		return core.IncomeSummary{}, err
	}
	return s.save(ctx, sum, SourceClient)
}

// Recompute rebuilds the summary for key from its stored details.
func (s *SummaryService) Recompute(ctx context.Context, key core.Key) (core.IncomeSummary, error) {
	details, err := s.store.ListDetails(ctx, key)
	if err != nil {
		return core.IncomeSummary{}, fmt.Errorf("list details for %s: %w", key, err)
	}
	sum, err := core.SummarizeDetails(key, details)
	if err != nil {
		return core.IncomeSummary{}, err
	}
	return s.save(ctx, sum, SourceRecompute)
}

func (s *SummaryService) save(ctx context.Context, sum core.IncomeSummary, source string) (core.IncomeSummary, error) {
	key := sum.Key()
	stored, err := s.store.UpsertSummary(ctx, sum)
	s.cache.Invalidate(key.String())
	if err != nil {
		s.recordUpsert(source, "error")
		return core.IncomeSummary{}, fmt.Errorf("upsert summary %s: %w", key, err)
	}

	result := "updated"
	if stored.Created() {
		result = "created"
	}
	s.recordUpsert(source, result)

	s.logger.InfoContext(ctx, "Income summary saved",
		log.FieldOperation, log.OpUpsert,
		log.FieldUserID, key.UserID,
		log.FieldTaxYear, key.TaxYear,
		log.FieldRevision, stored.Revision,
		log.FieldTotalIncome, stored.TotalIncome.String(),
		"source", source)

	s.export(ctx, stored)
	return stored, nil
}

// export is best effort; the stored summary is authoritative.
func (s *SummaryService) export(ctx context.Context, sum core.IncomeSummary) {
	if s.exporter == nil {
		return
	}
	err := s.exporter.Export(ctx, sum)
	if s.metrics != nil {
		s.metrics.Exports.WithLabelValues(s.exporter.Name(), metrics.Outcome(err)).Inc()
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Summary export failed",
			log.FieldError, err,
			log.FieldOperation, log.OpExport,
			log.FieldUserID, sum.UserID,
			log.FieldTaxYear, sum.TaxYear,
			"sink", s.exporter.Name())
	}
}

// Get returns the summary for key, served from cache when possible.
func (s *SummaryService) Get(ctx context.Context, key core.Key) (core.IncomeSummary, error) {
	sum, _, err := s.cache.Get(ctx, key.String(), func(ctx context.Context) (core.IncomeSummary, error) {
		return s.store.GetSummary(ctx, key)
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.IncomeSummary{}, fmt.Errorf("get summary %s: %w", key, err)
	}
	return sum, err
}

// CacheCleaner exposes the summary cache for periodic expiry sweeps.
func (s *SummaryService) CacheCleaner() cache.Cleaner {
	return s.cache
}

// ListByYear returns every summary for a tax year, bypassing the cache.
func (s *SummaryService) ListByYear(ctx context.Context, taxYear int) ([]core.IncomeSummary, error) {
	list, err := s.store.ListSummaries(ctx, taxYear)
	if err != nil {
		return nil, fmt.Errorf("list summaries for %d: %w", taxYear, err)
	}
	return list, nil
}

func (s *SummaryService) recordUpsert(source, result string) {
	if s.metrics != nil {
		s.metrics.SummaryUpserts.WithLabelValues(source, result).Inc()
	}
}
