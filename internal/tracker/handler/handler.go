package handler

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mantrip/internal/attendance/models"
	"mantrip/internal/tracker"
	"mantrip/pkg/platform/httputil"
	"mantrip/pkg/requestcontext"
)

//go:embed templates/*.html
var templateFS embed.FS

const noticeLimit = 5

// Engine is the reconciliation engine as seen by the UI.
type Engine interface {
	Load(ctx context.Context) error
	Records() []*models.Record
	LoadState() tracker.LoadState
}

// Roster is the roster manager as seen by the UI.
type Roster interface {
	Names() []string
	Years() []int
	Contains(name string) bool
	Toggle(ctx context.Context, personName string, year int, currentAttended bool) (*models.Record, error)
	AddPerson(ctx context.Context, name string) (tracker.BulkResult, error)
	RemovePerson(ctx context.Context, name string, confirmed bool) error
	InitializeAll(ctx context.Context) (tracker.BulkResult, error)
}

// Notifications is the source of recent messages.
type Notifications interface {
	Recent(limit int) []tracker.Notification
}

// Handler serves the attendance grid. Every mutating request redirects back to
// the grid; outcomes surface through the notification feed.
type Handler struct {
	engine  Engine
	roster  Roster
	notices Notifications
	logger  *slog.Logger
	pages   map[string]*template.Template
}

// New parses the page templates and builds a Handler.
func New(engine Engine, roster Roster, notices Notifications, logger *slog.Logger) (*Handler, error) {
	if engine == nil || roster == nil || notices == nil {
		return nil, fmt.Errorf("engine, roster and notifications are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pages := make(map[string]*template.Template)
	for _, page := range []string{"grid", "confirm_remove", "about"} {
		tpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", page, err)
		}
		pages[page] = tpl
	}
	return &Handler{
		engine:  engine,
		roster:  roster,
		notices: notices,
		logger:  logger,
		pages:   pages,
	}, nil
}

// Register registers the UI routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.handleGrid)
	r.Get("/about", h.handleAbout)
	r.Route("/tracker", func(r chi.Router) {
		r.Post("/toggle", h.handleToggle)
		r.Post("/people", h.handleAddPerson)
		r.Get("/people/remove", h.handleConfirmRemove)
		r.Post("/people/remove", h.handleRemove)
		r.Post("/initialize", h.handleInitialize)
		r.Post("/reload", h.handleReload)
		r.Get("/notifications", h.handleNotifications)
	})
}

type gridPage struct {
	Notifications []tracker.Notification
	Grid          tracker.Grid
	Load          tracker.LoadState
}

func (h *Handler) handleGrid(w http.ResponseWriter, r *http.Request) {
	grid := tracker.BuildGrid(h.roster.Names(), h.engine.Records(), h.roster.Years())
	h.render(w, r, "grid", gridPage{
		Notifications: h.notices.Recent(noticeLimit),
		Grid:          grid,
		Load:          h.engine.LoadState(),
	})
}

type aboutPage struct {
	Notifications []tracker.Notification
	FirstYear     int
}

func (h *Handler) handleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "about", aboutPage{FirstYear: models.FirstTrackedYear})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}
	person := r.PostForm.Get("person")
	year, err := strconv.Atoi(r.PostForm.Get("year"))
	if err != nil {
		h.badForm(w, r, err)
		return
	}
	current, err := strconv.ParseBool(r.PostForm.Get("attended"))
	if err != nil {
		h.badForm(w, r, err)
		return
	}
	if _, err := h.roster.Toggle(ctx, person, year, current); err != nil {
		h.logOutcome(ctx, "toggle", err)
	}
	h.backToGrid(w, r)
}

func (h *Handler) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}
	if _, err := h.roster.AddPerson(ctx, r.PostForm.Get("name")); err != nil {
		h.logOutcome(ctx, "add_person", err)
	}
	h.backToGrid(w, r)
}

type confirmPage struct {
	Notifications []tracker.Notification
	Name          string
}

func (h *Handler) handleConfirmRemove(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if !h.roster.Contains(name) {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "confirm_remove", confirmPage{Name: name})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}
	name := r.PostForm.Get("name")
	confirmed := r.PostForm.Get("confirm") == "yes"
	if err := h.roster.RemovePerson(ctx, name, confirmed); err != nil {
		if tracker.IsKind(err, tracker.KindConfirmationRequired) {
			http.Redirect(w, r, confirmRemovePath(name), http.StatusSeeOther)
			return
		}
		h.logOutcome(ctx, "remove_person", err)
	}
	h.backToGrid(w, r)
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.roster.InitializeAll(ctx); err != nil {
		h.logOutcome(ctx, "initialize_all", err)
	}
	h.backToGrid(w, r)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.engine.Load(ctx); err != nil {
		h.logOutcome(ctx, "load", err)
	}
	h.backToGrid(w, r)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notices := h.notices.Recent(0)
	if notices == nil {
		notices = []tracker.Notification{}
	}
	httputil.WriteData(w, http.StatusOK, notices)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page string, data any) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render page",
			"page", page,
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// confirmRemovePath carries the name as a query value; names may hold any
// character, including ones that break a path segment.
func confirmRemovePath(name string) string {
	return "/tracker/people/remove?" + url.Values{"name": {name}}.Encode()
}

func (h *Handler) backToGrid(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) badForm(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "invalid form submission",
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err,
	)
	http.Error(w, "invalid form submission", http.StatusBadRequest)
}

func (h *Handler) logOutcome(ctx context.Context, op string, err error) {
	h.logger.InfoContext(ctx, "tracker interaction failed",
		"operation", op,
		"kind", string(tracker.KindOf(err)),
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
