package services

import (
	"context"
	"errors"
	"fmt"

	"taxdesk/internal/amqp"
	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/metrics"
)

// DetailStore is the persistence IncomeService needs.
type DetailStore interface {
	CreateDetail(ctx context.Context, d core.IncomeDetail) (core.IncomeDetail, error)
	GetDetail(ctx context.Context, key core.Key, c core.Category) (core.IncomeDetail, error)
	UpdateDetail(ctx context.Context, d core.IncomeDetail) (core.IncomeDetail, error)
	DeleteDetail(ctx context.Context, key core.Key, c core.Category) error
	ListDetails(ctx context.Context, key core.Key) ([]core.IncomeDetail, error)
}

// EventPublisher announces detail changes. A nil publisher disables events.
type EventPublisher interface {
	PublishDetailEvent(ctx context.Context, msg *amqp.DetailEvent) error
}

// IncomeService validates and persists income details, then announces
// every change so the summary worker can recompute.
type IncomeService struct {
	store     DetailStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
}

func NewIncomeService(store DetailStore, publisher EventPublisher, m *metrics.Metrics, logger *log.Logger) *IncomeService {
	if logger == nil {
		logger = log.Discard()
	}
	return &IncomeService{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentIncome),
	}
}

// Create validates body against the category schema and stores it. A
// second detail for the same owner and category yields *core.ConflictError.
func (s *IncomeService) Create(ctx context.Context, c core.Category, body map[string]any) (core.IncomeDetail, error) {
	d, err := core.NewIncomeDetail(c, body)
	if err != nil {
		return core.IncomeDetail{}, err
	}

	saved, err := s.store.CreateDetail(ctx, d)
	s.recordWrite(c, log.OpCreate, err)
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.IncomeDetail{}, err
		}
		return core.IncomeDetail{}, fmt.Errorf("create %s detail: %w", c, err)
	}

	s.logger.InfoContext(ctx, "Income detail created",
		log.FieldDetailID, saved.ID,
		log.FieldUserID, saved.UserID,
		log.FieldTaxYear, saved.TaxYear,
		log.FieldCategory, string(c))

	s.publish(ctx, amqp.RoutingDetailSaved, saved.ID, saved.Key(), c)
	return saved, nil
}

// Update replaces the fields of the existing detail for body's owner.
func (s *IncomeService) Update(ctx context.Context, c core.Category, body map[string]any) (core.IncomeDetail, error) {
	d, err := core.NewIncomeDetail(c, body)
	if err != nil {
		return core.IncomeDetail{}, err
	}

	saved, err := s.store.UpdateDetail(ctx, d)
	s.recordWrite(c, log.OpUpdate, err)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.IncomeDetail{}, err
		}
		return core.IncomeDetail{}, fmt.Errorf("update %s detail: %w", c, err)
	}

	s.publish(ctx, amqp.RoutingDetailSaved, saved.ID, saved.Key(), c)
	return saved, nil
}

func (s *IncomeService) Get(ctx context.Context, key core.Key, c core.Category) (core.IncomeDetail, error) {
	d, err := s.store.GetDetail(ctx, key, c)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.IncomeDetail{}, fmt.Errorf("get %s detail: %w", c, err)
	}
	return d, err
}

// List returns every detail stored for key, possibly none.
func (s *IncomeService) List(ctx context.Context, key core.Key) ([]core.IncomeDetail, error) {
	details, err := s.store.ListDetails(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list details: %w", err)
	}
	if details == nil {
		details = []core.IncomeDetail{}
	}
	return details, nil
}

func (s *IncomeService) Delete(ctx context.Context, key core.Key, c core.Category) error {
	err := s.store.DeleteDetail(ctx, key, c)
	s.recordWrite(c, log.OpDelete, err)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete %s detail: %w", c, err)
	}
	s.publish(ctx, amqp.RoutingDetailDeleted, "", key, c)
	return nil
}

// publish is best effort: the detail is already stored and the worker's
// reconcile pass picks up anything an event missed.
func (s *IncomeService) publish(ctx context.Context, event, detailID string, key core.Key, c core.Category) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishDetailEvent(ctx, amqp.NewDetailEvent(event, detailID, key.UserID, key.TaxYear, string(c)))
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(event, metrics.Outcome(err)).Inc()
	}
	if err != nil {
		fields := log.NewFields().
			WithKey(key.UserID, key.TaxYear).
			WithCategory(string(c)).
			WithOperation(log.OpPublish).
			WithError(err, log.ErrorTypeNetwork)
		s.logger.WarnContext(ctx, "Failed to publish detail event", fields.ToSlice()...)
	}
}

func (s *IncomeService) recordWrite(c core.Category, op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.Outcome(err)
	switch {
	case errors.Is(err, core.ErrConflict):
		outcome = "conflict"
	case errors.Is(err, core.ErrNotFound):
		outcome = "not_found"
	}
	s.metrics.DetailWrites.WithLabelValues(string(c), op, outcome).Inc()
}
