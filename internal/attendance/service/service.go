package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mantrip/internal/attendance/events"
	"mantrip/internal/attendance/metrics"
	"mantrip/internal/attendance/models"
	dErrors "mantrip/pkg/domain-errors"
	"mantrip/pkg/platform/sentinel"
	"mantrip/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Publisher

type Store interface {
	List(ctx context.Context) ([]*models.Record, error)
	FindByID(ctx context.Context, id string) (*models.Record, error)
	Create(ctx context.Context, record *models.Record) error
	Update(ctx context.Context, record *models.Record) error
	Delete(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service owns the ManTripAttendance resource: validation, uniqueness of
// (person, year), persistence and change events.
type Service struct {
	store     Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func(ctx context.Context) time.Time
	newID     func() string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock overrides the time source. The default reads the request-scoped
// time so one request uses one timestamp throughout.
func WithClock(now func(ctx context.Context) time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("attendance store is required")
	}
	s := &Service{
		store: store,
		now:   requestcontext.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns every record ordered by person then year.
func (s *Service) List(ctx context.Context) ([]*models.Record, error) {
	start := time.Now()
	records, err := s.store.List(ctx)
	s.observeStore("list", start)
	if err != nil {
		s.recordOutcome("list", "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attendance")
	}
	s.recordOutcome("list", "ok")
	return records, nil
}

// Create stores a new record. A second record for the same person and year is
// rejected as a conflict.
func (s *Service) Create(ctx context.Context, req *models.CreateRequest) (*models.Record, error) {
	now := s.now(ctx)
	req.Normalize()
	if err := req.Validate(now.Year()); err != nil {
		s.recordOutcome("create", "invalid")
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	record := &models.Record{
		ID:         s.newID(),
		PersonName: req.PersonName,
		Year:       req.Year,
		Attended:   req.Attended,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	start := time.Now()
	err := s.store.Create(ctx, record)
	s.observeStore("create", start)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.recordOutcome("create", "conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "attendance already recorded for this person and year")
		}
		s.recordOutcome("create", "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create attendance")
	}

	s.recordOutcome("create", "ok")
	s.logAudit(ctx, events.TypeCreated, record)
	s.publish(ctx, events.TypeCreated, record, now)
	return record, nil
}

// Update changes the attended flag of an existing record.
func (s *Service) Update(ctx context.Context, id string, req *models.UpdateRequest) (*models.Record, error) {
	if err := req.Validate(); err != nil {
		s.recordOutcome("update", "invalid")
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateLookup("update", err)
	}

	now := s.now(ctx)
	record.Attended = *req.Attended
	record.UpdatedAt = now

	start := time.Now()
	err = s.store.Update(ctx, record)
	s.observeStore("update", start)
	if err != nil {
		return nil, s.translateLookup("update", err)
	}

	s.recordOutcome("update", "ok")
	s.logAudit(ctx, events.TypeUpdated, record)
	s.publish(ctx, events.TypeUpdated, record, now)
	return record, nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, id string) error {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		return s.translateLookup("delete", err)
	}

	start := time.Now()
	err = s.store.Delete(ctx, id)
	s.observeStore("delete", start)
	if err != nil {
		return s.translateLookup("delete", err)
	}

	s.recordOutcome("delete", "ok")
	s.logAudit(ctx, events.TypeDeleted, record)
	s.publish(ctx, events.TypeDeleted, record, s.now(ctx))
	return nil
}

func (s *Service) translateLookup(operation string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		s.recordOutcome(operation, "not_found")
		return dErrors.New(dErrors.CodeNotFound, "attendance record not found")
	}
	s.recordOutcome(operation, "error")
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+operation+" attendance")
}

func (s *Service) publish(ctx context.Context, typ events.Type, record *models.Record, at time.Time) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:       typ,
		Record:     *record,
		OccurredAt: at,
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementPublishFailures()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish attendance event",
			"event", string(typ),
			"record_id", record.ID,
			"error", err,
		)
	}
}

func (s *Service) logAudit(ctx context.Context, typ events.Type, record *models.Record) {
	if s.logger == nil {
		return
	}
	args := []any{
		"event", string(typ),
		"log_type", "audit",
		"record_id", record.ID,
		"person_name", record.PersonName,
		"year", record.Year,
		"attended", record.Attended,
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, string(typ), args...)
}

func (s *Service) recordOutcome(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordOutcome(operation, outcome)
	}
}

func (s *Service) observeStore(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStore(operation, start)
	}
}
