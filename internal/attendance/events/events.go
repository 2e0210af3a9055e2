// Package events publishes attendance changes to downstream consumers.
//
// Publishing is fail-open: the service logs and counts publish failures but
// never fails a write because the event stream is unavailable.
package events

import (
	"context"
	"time"

	"mantrip/internal/attendance/models"
)

// Type names the kind of change.
type Type string

const (
	TypeCreated Type = "attendance_created"
	TypeUpdated Type = "attendance_updated"
	TypeDeleted Type = "attendance_deleted"
)

// Event describes one change to a record.
type Event struct {
	Type       Type          `json:"type"`
	Record     models.Record `json:"record"`
	OccurredAt time.Time     `json:"occurredAt"`
	RequestID  string        `json:"requestId,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
