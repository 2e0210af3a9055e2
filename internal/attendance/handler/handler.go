package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mantrip/internal/attendance/models"
	dErrors "mantrip/pkg/domain-errors"
	"mantrip/pkg/platform/httputil"
	"mantrip/pkg/requestcontext"
)

const maxBodyBytes = 1 << 16

// Service defines the attendance operations exposed over HTTP.
type Service interface {
	List(ctx context.Context) ([]*models.Record, error)
	Create(ctx context.Context, req *models.CreateRequest) (*models.Record, error)
	Update(ctx context.Context, id string, req *models.UpdateRequest) (*models.Record, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the ManTripAttendance resource.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a new attendance Handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register registers the attendance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/attendance", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, "list", err)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	httputil.WriteData(w, http.StatusOK, records)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.Create(ctx, &req)
	if err != nil {
		h.fail(ctx, w, "create", err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, record)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.Update(ctx, chi.URLParam(r, "id"), &req)
	if err != nil {
		h.fail(ctx, w, "update", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, record)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		h.fail(ctx, w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid attendance request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	args := []any{
		"operation", operation,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "attendance request failed", args...)
	} else {
		h.logger.WarnContext(ctx, "attendance request rejected", args...)
	}
	httputil.WriteError(w, err)
}
