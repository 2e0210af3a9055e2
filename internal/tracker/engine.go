// Package tracker holds the client-side attendance state: the optimistic
// reconciliation engine, the roster and the grid projection.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mantrip/internal/attendance/models"
	"mantrip/internal/tracker/metrics"
)

const tracerName = "mantrip/internal/tracker"

// Engine owns the reconciled record set. Optimistic mutations and
// reconciliation run under mu; remote calls run outside it.
//
// Invariants:
//   - at most one record per (PersonName, Year)
//   - at most one in-flight write per (PersonName, Year)
//   - a temporary record never coexists with a confirmed one for its key
type Engine struct {
	store    RemoteStore
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	tempID   func() string

	mu      sync.Mutex
	records []*models.Record
	pending *pendingSet
	load    LoadState
}

// LoadState describes the most recent full load.
type LoadState struct {
	Loaded     bool
	LastLoaded time.Time
	LastError  string
}

type EngineOption func(*Engine)

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTempIDs overrides temporary id generation. Generated ids get
// models.TempIDPrefix prepended.
func WithTempIDs(gen func() string) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.tempID = gen
		}
	}
}

// NewEngine constructs an Engine with an empty record set. Call Load to fill it.
func NewEngine(store RemoteStore, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	e := &Engine{
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		tempID:  uuid.NewString,
		pending: newPendingSet(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Toggle flips attendance for (personName, year) away from currentAttended.
// The local record set reflects the new value before the store is called and
// is reconciled with the store's answer afterwards. The returned record is the
// store's copy on success.
func (e *Engine) Toggle(ctx context.Context, personName string, year int, currentAttended bool) (*models.Record, error) {
	key := models.Key{PersonName: personName, Year: year}
	newStatus := !currentAttended

	ctx, span := e.tracer.Start(ctx, "tracker.toggle", trace.WithAttributes(
		attribute.String("person_name", personName),
		attribute.Int("year", year),
		attribute.Bool("attended", newStatus),
	))
	defer span.End()

	e.mu.Lock()
	idx := e.indexOf(key)
	var snapshot *models.Record
	if idx >= 0 {
		snapshot = e.records[idx]
	}
	op, ok := e.pending.begin(key, snapshot)
	if !ok {
		e.mu.Unlock()
		e.recordToggle("in_flight")
		e.notify(ctx, LevelError, fmt.Sprintf("Still saving %s's attendance for %d", personName, year))
		err := newError(KindInFlight, "toggle", "a write for this cell is still pending", nil)
		span.SetStatus(codes.Error, err.Message)
		return nil, err
	}

	existingID := ""
	if idx >= 0 {
		optimistic := e.records[idx].Clone()
		optimistic.Attended = newStatus
		e.records[idx] = optimistic
		existingID = optimistic.ID
	} else {
		e.records = append(e.records, &models.Record{
			ID:         models.TempIDPrefix + e.tempID(),
			PersonName: personName,
			Year:       year,
			Attended:   newStatus,
		})
	}
	e.setPendingGauge()
	e.mu.Unlock()

	if idx >= 0 {
		return e.reconcileUpdate(ctx, span, key, op, existingID, newStatus)
	}
	return e.reconcileCreate(ctx, span, key, op, newStatus)
}

func (e *Engine) reconcileUpdate(ctx context.Context, span trace.Span, key models.Key, op *pendingOp, id string, attended bool) (*models.Record, error) {
	start := time.Now()
	confirmed, err := e.store.Update(ctx, id, models.UpdateRequest{Attended: &attended})
	e.observeRemote("update", start, err)
	if err == nil && confirmed == nil {
		err = fmt.Errorf("store returned no record")
	}

	e.mu.Lock()
	if err != nil {
		if !op.orphaned {
			e.restore(key, op.snapshot)
		}
		e.settle(key, op, PhaseRolledBack)
		e.mu.Unlock()
		return nil, e.failToggle(ctx, span, "update", key, err)
	}
	if !op.orphaned {
		e.upsert(confirmed.Clone())
	}
	e.settle(key, op, PhaseCommitted)
	e.mu.Unlock()

	e.recordToggle(PhaseCommitted.String())
	e.notify(ctx, LevelSuccess, fmt.Sprintf("Updated %s's attendance for %d", key.PersonName, key.Year))
	return confirmed, nil
}

func (e *Engine) reconcileCreate(ctx context.Context, span trace.Span, key models.Key, op *pendingOp, attended bool) (*models.Record, error) {
	start := time.Now()
	confirmed, err := e.store.Create(ctx, models.CreateRequest{
		Year:       key.Year,
		PersonName: key.PersonName,
		Attended:   attended,
	})
	e.observeRemote("create", start, err)
	if err == nil && confirmed == nil {
		err = fmt.Errorf("store returned no record")
	}

	e.mu.Lock()
	if err != nil {
		if !op.orphaned {
			e.discardTemporary(key)
		}
		e.settle(key, op, PhaseRolledBack)
		e.mu.Unlock()
		return nil, e.failToggle(ctx, span, "create", key, err)
	}
	if !op.orphaned {
		e.upsert(confirmed.Clone())
	}
	e.settle(key, op, PhaseCommitted)
	e.mu.Unlock()

	e.recordToggle(PhaseCommitted.String())
	e.notify(ctx, LevelSuccess, fmt.Sprintf("Added %s's attendance for %d", key.PersonName, key.Year))
	return confirmed, nil
}

func (e *Engine) failToggle(ctx context.Context, span trace.Span, operation string, key models.Key, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "remote "+operation+" failed")
	e.recordToggle(PhaseRolledBack.String())
	e.logger.WarnContext(ctx, "attendance toggle reverted",
		"operation", operation,
		"person_name", key.PersonName,
		"year", key.Year,
		"error", err,
	)
	e.notify(ctx, LevelError, "Failed to update attendance")
	return newError(KindRemoteCall, "toggle", "remote "+operation+" failed", err)
}

// Load replaces the record set with the store's. On failure the previous set
// is kept.
func (e *Engine) Load(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "tracker.load")
	defer span.End()

	start := time.Now()
	records, err := e.store.List(ctx)
	e.observeRemote("list", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		e.mu.Lock()
		e.load.LastError = err.Error()
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.RecordLoad("error")
		}
		e.logger.ErrorContext(ctx, "failed to load attendance", "error", err)
		e.notify(ctx, LevelError, "Failed to load attendance data")
		return newError(KindLoad, "load", "list failed", err)
	}

	next := make([]*models.Record, 0, len(records))
	seen := make(map[models.Key]int, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if i, dup := seen[r.Key()]; dup {
			next[i] = r.Clone()
			continue
		}
		seen[r.Key()] = len(next)
		next = append(next, r.Clone())
	}
	span.SetAttributes(attribute.Int("records", len(next)))

	e.mu.Lock()
	e.records = next
	e.load = LoadState{Loaded: true, LastLoaded: e.now()}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordLoad("ok")
	}
	e.logger.InfoContext(ctx, "attendance loaded", "records", len(next))
	return nil
}

// Records returns a copy of the reconciled record set.
func (e *Engine) Records() []*models.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Record, len(e.records))
	for i, r := range e.records {
		out[i] = r.Clone()
	}
	return out
}

// Status returns the attended flag for (personName, year), false if absent.
func (e *Engine) Status(personName string, year int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx := e.indexOf(models.Key{PersonName: personName, Year: year}); idx >= 0 {
		return e.records[idx].Attended
	}
	return false
}

// Phase reports the write lifecycle of (personName, year).
func (e *Engine) Phase(personName string, year int) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.phase(models.Key{PersonName: personName, Year: year})
}

func (e *Engine) LoadState() LoadState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load
}

// has reports whether any record exists for key.
func (e *Engine) has(key models.Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexOf(key) >= 0
}

// dropPerson removes every local record of person and detaches their pending
// writes. It returns the removed records.
func (e *Engine) dropPerson(person string) []*models.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	var removed []*models.Record
	e.records = slices.DeleteFunc(e.records, func(r *models.Record) bool {
		if r.PersonName == person {
			removed = append(removed, r)
			return true
		}
		return false
	})
	e.pending.orphan(person)
	return removed
}

// createConfirmed issues a create without touching local state. Bulk
// operations use it and reload afterwards.
func (e *Engine) createConfirmed(ctx context.Context, person string, year int) error {
	ctx, span := e.tracer.Start(ctx, "tracker.bulk_create", trace.WithAttributes(
		attribute.String("person_name", person),
		attribute.Int("year", year),
	))
	defer span.End()

	start := time.Now()
	_, err := e.store.Create(ctx, models.CreateRequest{Year: year, PersonName: person})
	e.observeRemote("create", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote create failed")
		e.logger.WarnContext(ctx, "bulk create failed",
			"person_name", person,
			"year", year,
			"error", err,
		)
	}
	return err
}

func (e *Engine) deleteRemote(ctx context.Context, deleter RemoteDeleter, r *models.Record) error {
	ctx, span := e.tracer.Start(ctx, "tracker.delete", trace.WithAttributes(
		attribute.String("record_id", r.ID),
	))
	defer span.End()

	start := time.Now()
	err := deleter.Delete(ctx, r.ID)
	e.observeRemote("delete", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote delete failed")
		e.logger.WarnContext(ctx, "remote delete failed", "record_id", r.ID, "error", err)
	}
	return err
}

func (e *Engine) indexOf(key models.Key) int {
	return slices.IndexFunc(e.records, func(r *models.Record) bool {
		return r.PersonName == key.PersonName && r.Year == key.Year
	})
}

func (e *Engine) upsert(r *models.Record) {
	if idx := e.indexOf(r.Key()); idx >= 0 {
		e.records[idx] = r
		return
	}
	e.records = append(e.records, r)
}

// restore puts key back the way snapshot recorded it.
func (e *Engine) restore(key models.Key, snapshot *models.Record) {
	idx := e.indexOf(key)
	switch {
	case snapshot == nil && idx >= 0:
		e.records = slices.Delete(e.records, idx, idx+1)
	case snapshot != nil && idx >= 0:
		e.records[idx] = snapshot.Clone()
	case snapshot != nil:
		e.records = append(e.records, snapshot.Clone())
	}
}

// discardTemporary removes the placeholder for key. A confirmed record that
// arrived through a concurrent Load is kept.
func (e *Engine) discardTemporary(key models.Key) {
	if idx := e.indexOf(key); idx >= 0 && e.records[idx].IsTemporary() {
		e.records = slices.Delete(e.records, idx, idx+1)
	}
}

func (e *Engine) settle(key models.Key, op *pendingOp, phase Phase) {
	e.pending.settle(key, op, phase)
	e.setPendingGauge()
}

func (e *Engine) setPendingGauge() {
	if e.metrics != nil {
		e.metrics.SetPending(e.pending.count())
	}
}

func (e *Engine) recordToggle(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordToggle(outcome)
	}
}

func (e *Engine) observeRemote(operation string, start time.Time, err error) {
	if e.metrics != nil {
		e.metrics.ObserveRemote(operation, start, err)
	}
}

func (e *Engine) notify(ctx context.Context, level Level, message string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, Notification{Level: level, Message: message, At: e.now()})
}
