package adapters

import (
	"context"

	"mantrip/internal/attendance/models"
)

// AttendanceService is the in-process attendance service.
type AttendanceService interface {
	List(ctx context.Context) ([]*models.Record, error)
	Create(ctx context.Context, req *models.CreateRequest) (*models.Record, error)
	Update(ctx context.Context, id string, req *models.UpdateRequest) (*models.Record, error)
	Delete(ctx context.Context, id string) error
}

// AttendanceAdapter lets the tracker call the attendance service directly
// when no remote base URL is configured.
type AttendanceAdapter struct {
	service AttendanceService
}

func NewAttendanceAdapter(service AttendanceService) *AttendanceAdapter {
	return &AttendanceAdapter{service: service}
}

func (a *AttendanceAdapter) List(ctx context.Context) ([]*models.Record, error) {
	return a.service.List(ctx)
}

func (a *AttendanceAdapter) Create(ctx context.Context, req models.CreateRequest) (*models.Record, error) {
	return a.service.Create(ctx, &req)
}

func (a *AttendanceAdapter) Update(ctx context.Context, id string, req models.UpdateRequest) (*models.Record, error) {
	return a.service.Update(ctx, id, &req)
}

func (a *AttendanceAdapter) Delete(ctx context.Context, id string) error {
	return a.service.Delete(ctx, id)
}
