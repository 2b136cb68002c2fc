package journal

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gastromanager/gastromanager/internal/rbac"
	"github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/view"
)

// Handler serves the staff activity feed.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers the feed route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermJournalView))
		r.Get("/", h.handleFeed)
	})
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := Filters{
		Actor:  q.Get("actor"),
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = page
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filters.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filters.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}

	result, err := h.service.Feed(r.Context(), filters)
	if err != nil {
		h.logger.Error("load activity feed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Activity Journal",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data: map[string]any{
			"Entries": result.Entries,
			"Paging":  result.Paging,
			"Filters": filters,
		},
	}
	if err := h.templates.Render(w, "journal.html", viewData); err != nil {
		h.logger.Error("render journal", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
