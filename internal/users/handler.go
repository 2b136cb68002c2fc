package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gastromanager/gastromanager/internal/rbac"
	"github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/view"
)

// Handler manages staff account endpoints.
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

// MountRoutes registers staff account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createUser)
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}/edit", h.updateUser)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "users_list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "users_list.html", map[string]any{"Users": users}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "user_form.html", map[string]any{"Errors": formErrors{}, "Levels": levelChoices()}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	input := CreateInput{
		Username: r.PostFormValue("username"),
		FullName: r.PostFormValue("full_name"),
		Level:    r.PostFormValue("level"),
		Password: r.PostFormValue("password"),
	}
	created, err := h.service.CreateUser(r.Context(), input)
	if err != nil {
		h.logger.Error("create user failed", slog.Any("error", err))
		h.render(w, r, "user_form.html", map[string]any{
			"Errors": formErrors{"general": err.Error()},
			"Form":   input,
			"Levels": levelChoices(),
		}, http.StatusBadRequest)
		return
	}
	h.logger.Info("user created", slog.Int64("id", created.ID), slog.String("username", created.Username))
	h.redirectWithFlash(w, r, "/users", "success", "Staff account created")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	h.render(w, r, "user_edit.html", map[string]any{"Errors": formErrors{}, "User": user, "Levels": levelChoices()}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	input := UpdateInput{
		FullName: r.PostFormValue("full_name"),
		Level:    r.PostFormValue("level"),
		IsActive: r.PostFormValue("is_active") == "on",
		Password: r.PostFormValue("password"),
	}
	if err := h.service.UpdateUser(r.Context(), id, input); err != nil {
		h.logger.Error("update user failed", slog.Any("error", err), slog.Int64("id", id))
		user, _ := h.service.GetUser(r.Context(), id)
		h.render(w, r, "user_edit.html", map[string]any{
			"Errors": formErrors{"general": err.Error()},
			"User":   user,
			"Levels": levelChoices(),
		}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Staff account updated")
}

func levelChoices() []rbac.Level {
	return []rbac.Level{rbac.LevelManager, rbac.LevelService, rbac.LevelProduction}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Staff", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
