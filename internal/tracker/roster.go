package tracker

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"mantrip/internal/attendance/models"
	strutil "mantrip/pkg/platform/strings"
)

// DefaultRoster is used when no roster is configured.
var DefaultRoster = []string{"Jon", "Roger", "Kevin", "Smalls", "Pat"}

// Roster is the ordered set of tracked people. It is independent of the
// record set: a person may have no records and records may outlive a person.
type Roster struct {
	engine    *Engine
	years     func() []int
	propagate bool

	mu    sync.RWMutex
	names []string
}

type RosterOption func(*Roster)

// WithDeletePropagation makes RemovePerson delete the person's confirmed
// records from the store when the store supports it.
func WithDeletePropagation() RosterOption {
	return func(r *Roster) {
		r.propagate = true
	}
}

// WithYears overrides the tracked years source.
func WithYears(years func() []int) RosterOption {
	return func(r *Roster) {
		if years != nil {
			r.years = years
		}
	}
}

// BulkResult summarizes a sequence of creates.
type BulkResult struct {
	Attempted int
	Created   int
	Failed    int
}

// NewRoster builds a roster over engine. Names are trimmed; blanks and
// duplicates are dropped.
func NewRoster(engine *Engine, names []string, opts ...RosterOption) (*Roster, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	r := &Roster{
		engine: engine,
		years:  func() []int { return TrackedYears(engine.now()) },
	}
	r.names = strutil.DedupeAndTrim(slices.Clone(names))
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Names returns the roster in order.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Years returns the tracked years.
func (r *Roster) Years() []int {
	return r.years()
}

// Contains reports whether name is on the roster.
func (r *Roster) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.names, name)
}

// Toggle flips attendance for a tracked cell. A person off the roster or a
// year outside Years is rejected before any store call.
func (r *Roster) Toggle(ctx context.Context, personName string, year int, currentAttended bool) (*models.Record, error) {
	if !r.Contains(personName) {
		return nil, r.reject(ctx, "toggle", fmt.Sprintf("%s is not on the roster", personName))
	}
	if !slices.Contains(r.years(), year) {
		return nil, r.reject(ctx, "toggle", fmt.Sprintf("%d is not a tracked year", year))
	}
	return r.engine.Toggle(ctx, personName, year, currentAttended)
}

// AddPerson appends name and creates an unattended record for every tracked
// year, then reloads. Failed creates are counted, not rolled back.
func (r *Roster) AddPerson(ctx context.Context, name string) (BulkResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return BulkResult{}, r.reject(ctx, "add_person", "Name is required")
	}

	r.mu.Lock()
	if slices.Contains(r.names, name) {
		r.mu.Unlock()
		return BulkResult{}, r.reject(ctx, "add_person", fmt.Sprintf("%s is already on the roster", name))
	}
	r.names = append(r.names, name)
	r.mu.Unlock()

	var result BulkResult
	for _, year := range r.years() {
		result.Attempted++
		if err := r.engine.createConfirmed(ctx, name, year); err != nil {
			result.Failed++
			continue
		}
		result.Created++
	}
	loadErr := r.engine.Load(ctx)

	r.engine.logger.InfoContext(ctx, "person added",
		"person_name", name,
		"created", result.Created,
		"failed", result.Failed,
	)
	switch {
	case result.Failed > 0:
		r.engine.notify(ctx, LevelError, fmt.Sprintf("Added %s but %d of %d records failed", name, result.Failed, result.Attempted))
	case loadErr == nil:
		r.engine.notify(ctx, LevelSuccess, fmt.Sprintf("Added %s to the roster", name))
	}
	return result, nil
}

// RemovePerson drops name from the roster and their records from local state.
// Nothing happens unless confirmed is true. Store records are kept unless
// delete propagation is enabled, so they come back on the next Load.
func (r *Roster) RemovePerson(ctx context.Context, name string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	name = strings.TrimSpace(name)

	r.mu.Lock()
	idx := slices.Index(r.names, name)
	if idx < 0 {
		r.mu.Unlock()
		return r.reject(ctx, "remove_person", fmt.Sprintf("%s is not on the roster", name))
	}
	r.names = slices.Delete(r.names, idx, idx+1)
	r.mu.Unlock()

	removed := r.engine.dropPerson(name)

	deleted, failed := 0, 0
	if deleter, ok := r.engine.store.(RemoteDeleter); ok && r.propagate {
		for _, rec := range removed {
			if rec.IsTemporary() {
				continue
			}
			if err := r.engine.deleteRemote(ctx, deleter, rec); err != nil {
				failed++
				continue
			}
			deleted++
		}
	}

	r.engine.logger.InfoContext(ctx, "person removed",
		"person_name", name,
		"local_records", len(removed),
		"remote_deleted", deleted,
		"remote_failed", failed,
	)
	if failed > 0 {
		r.engine.notify(ctx, LevelError, fmt.Sprintf("Removed %s but %d records could not be deleted", name, failed))
		return nil
	}
	r.engine.notify(ctx, LevelSuccess, fmt.Sprintf("Removed %s from the roster", name))
	return nil
}

// InitializeAll creates an unattended record for every (person, year) that
// has none, then reloads.
func (r *Roster) InitializeAll(ctx context.Context) (BulkResult, error) {
	start := time.Now()
	var result BulkResult
	years := r.years()
	for _, name := range r.Names() {
		for _, year := range years {
			if r.engine.has(models.Key{PersonName: name, Year: year}) {
				continue
			}
			result.Attempted++
			if err := r.engine.createConfirmed(ctx, name, year); err != nil {
				result.Failed++
				continue
			}
			result.Created++
		}
	}
	loadErr := r.engine.Load(ctx)

	r.engine.logger.InfoContext(ctx, "attendance initialized",
		"attempted", result.Attempted,
		"created", result.Created,
		"failed", result.Failed,
		"duration", time.Since(start),
	)
	if result.Failed > 0 {
		r.engine.notify(ctx, LevelError, "Failed to initialize data")
		return result, newError(KindRemoteCall, "initialize_all",
			fmt.Sprintf("%d of %d creates failed", result.Failed, result.Attempted), nil)
	}
	if loadErr != nil {
		return result, loadErr
	}
	r.engine.notify(ctx, LevelSuccess, "Initialized all attendance records")
	return result, nil
}

func (r *Roster) reject(ctx context.Context, op, message string) error {
	r.engine.notify(ctx, LevelError, message)
	return newError(KindValidation, op, message, nil)
}
