package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"taxdesk/internal/amqp"
	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/metrics"
)

// Recompute triggers, used as metric labels.
const (
	TriggerEvent     = "event"
	TriggerReconcile = "reconcile"
)

type Recomputer interface {
	Recompute(ctx context.Context, key core.Key) (core.IncomeSummary, error)
}

// StaleFinder lists keys whose summary is missing or older than their
// newest detail.
type StaleFinder interface {
	StaleSummaryKeys(ctx context.Context, limit int) ([]core.Key, error)
}

type EventConsumer interface {
	ConsumeDetailEvents(ctx context.Context, handler func(context.Context, *amqp.DetailEvent) error) error
}

type Options struct {
	// Schedule is a cron spec for reconcile passes; descriptors such as
	// "@every 10m" are accepted.
	Schedule  string
	BatchSize int
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// SummaryWorker keeps income summaries in step with their details: it
// recomputes on every detail event and periodically reconciles keys whose
// events were lost.
type SummaryWorker struct {
	summaries Recomputer
	stale     StaleFinder
	consumer  EventConsumer
	schedule  string
	batchSize int
	metrics   *metrics.Metrics
	logger    *log.Logger
}

// NewSummaryWorker builds a worker. A nil consumer runs reconcile passes only.
func NewSummaryWorker(summaries Recomputer, stale StaleFinder, consumer EventConsumer, opts Options) *SummaryWorker {
	if opts.Schedule == "" {
		opts.Schedule = "@every 10m"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &SummaryWorker{
		summaries: summaries,
		stale:     stale,
		consumer:  consumer,
		schedule:  opts.Schedule,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		logger:    opts.Logger.WithComponent(log.ComponentWorker),
	}
}

// HandleDetailEvent recomputes the summary owning msg's detail. A returned
// error makes the consumer nack the delivery.
func (w *SummaryWorker) HandleDetailEvent(ctx context.Context, msg *amqp.DetailEvent) error {
	key := core.Key{UserID: msg.UserID, TaxYear: msg.TaxYear}
	w.logger.DebugContext(ctx, "Processing detail event",
		"event", msg.Event,
		log.FieldDetailID, msg.DetailID,
		log.FieldUserID, key.UserID,
		log.FieldTaxYear, key.TaxYear,
		log.FieldCategory, msg.Category)

	if err := w.recompute(ctx, key, TriggerEvent); err != nil {
		return fmt.Errorf("recompute %s after %s: %w", key, msg.Event, err)
	}
	return nil
}

// Reconcile recomputes up to one batch of stale summaries. It keeps going
// past individual failures and reports them together.
func (w *SummaryWorker) Reconcile(ctx context.Context) (int, error) {
	keys, err := w.stale.StaleSummaryKeys(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale summaries: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Reconciling stale summaries", "count", len(keys))

	var (
		done int
		errs []error
	)
	for _, key := range keys {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := w.recompute(ctx, key, TriggerReconcile); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (w *SummaryWorker) recompute(ctx context.Context, key core.Key, trigger string) error {
	start := time.Now()
	sum, err := w.summaries.Recompute(ctx, key)
	if w.metrics != nil {
		w.metrics.Recomputes.WithLabelValues(trigger, metrics.Outcome(err)).Inc()
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Summary recompute failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRecompute,
			log.FieldUserID, key.UserID,
			log.FieldTaxYear, key.TaxYear,
			"trigger", trigger)
		return err
	}
	w.logger.InfoContext(ctx, "Summary recomputed",
		log.FieldUserID, key.UserID,
		log.FieldTaxYear, key.TaxYear,
		log.FieldRevision, sum.Revision,
		log.FieldTotalIncome, sum.TotalIncome.String(),
		log.FieldDuration, time.Since(start).Milliseconds(),
		"trigger", trigger)
	return nil
}

// Run consumes detail events and runs scheduled reconcile passes until ctx
// is cancelled. A consumer failure stops the scheduler too.
func (w *SummaryWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeDetailEvents(ctx, w.HandleDetailEvent)
		})
	} else {
		w.logger.InfoContext(ctx, "No event consumer configured, running reconcile passes only")
	}
	g.Go(func() error {
		return w.runSchedule(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *SummaryWorker) runSchedule(ctx context.Context) error {
	reconcile := func() {
		if n, err := w.Reconcile(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Reconcile pass failed",
				log.FieldError, err,
				log.FieldOperation, log.OpReconcile,
				"recomputed", n)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.schedule, reconcile); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", w.schedule, err)
	}

	// Catch up on anything missed while the worker was down.
	reconcile()

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
