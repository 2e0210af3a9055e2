package tracker

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks RemoteStore,RemoteDeleter,Notifier

import (
	"context"
	"time"

	"mantrip/internal/attendance/models"
)

// RemoteStore is the authoritative attendance resource.
type RemoteStore interface {
	List(ctx context.Context) ([]*models.Record, error)
	Create(ctx context.Context, req models.CreateRequest) (*models.Record, error)
	Update(ctx context.Context, id string, req models.UpdateRequest) (*models.Record, error)
}

// RemoteDeleter is implemented by stores that can remove records. Only used
// when roster removal propagates deletes.
type RemoteDeleter interface {
	Delete(ctx context.Context, id string) error
}

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient user-facing message about an interaction.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives the outcome of every interaction.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
