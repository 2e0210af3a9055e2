package record

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mantrip/internal/attendance/models"
	"mantrip/pkg/platform/sentinel"
)

// InMemory is an in-memory attendance store. It keeps a secondary index on
// (person, year) so the uniqueness invariant is checked in O(1).
type InMemory struct {
	mu    sync.RWMutex
	byID  map[string]*models.Record
	byKey map[models.Key]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:  make(map[string]*models.Record),
		byKey: make(map[models.Key]string),
	}
}

func (s *InMemory) List(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *InMemory) Create(_ context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byKey[r.Key()]; taken {
		return fmt.Errorf("record for %s/%d: %w", r.PersonName, r.Year, sentinel.ErrConflict)
	}
	if _, taken := s.byID[r.ID]; taken {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrConflict)
	}
	s.byID[r.ID] = r.Clone()
	s.byKey[r.Key()] = r.ID
	return nil
}

// Update persists the mutable fields. PersonName and Year are part of the
// unique key and are never rewritten.
func (s *InMemory) Update(_ context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[r.ID]
	if !ok {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrNotFound)
	}
	existing.Attended = r.Attended
	existing.UpdatedAt = r.UpdatedAt
	return nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.byKey, r.Key())
	delete(s.byID, id)
	return nil
}

func sortRecords(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].PersonName != records[j].PersonName {
			return records[i].PersonName < records[j].PersonName
		}
		return records[i].Year < records[j].Year
	})
}
