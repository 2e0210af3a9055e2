// Package attendance is the server side of the ManTripAttendance resource.
package attendance

import (
	"log/slog"

	"mantrip/internal/attendance/handler"
	"mantrip/internal/attendance/service"
)

// Service exposes attendance record orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the attendance service.
type Handler = handler.Handler

// NewService constructs the attendance service over the chosen record store.
func NewService(store service.Store, opts ...service.Option) (*Service, error) {
	return service.New(store, opts...)
}

// NewHandler constructs the JSON handler mounted under /api.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
