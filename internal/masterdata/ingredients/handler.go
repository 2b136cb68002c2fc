package ingredients

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gastromanager/gastromanager/internal/masterdata/shared"
	"github.com/gastromanager/gastromanager/internal/rbac"
	internalShared "github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/view"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *internalShared.CSRFManager
	sessions  *internalShared.SessionManager
	rbac      rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *internalShared.CSRFManager, sessions *internalShared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers ingredient catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalShared.PermIngredientsView, internalShared.PermIngredientsEdit))
		r.Get("/ingredients", h.List)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalShared.PermIngredientsEdit))
		r.Get("/ingredients/new", h.Form)
		r.Post("/ingredients", h.Create)
		r.Get("/ingredients/{id}/edit", h.EditForm)
		r.Post("/ingredients/{id}/edit", h.Update)
		r.Post("/ingredients/{id}/delete", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.FiltersFromRequest(r)
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list ingredients failed", "error", err)
		http.Error(w, "Failed to load ingredients", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "ingredients_list.html", map[string]any{
		"Ingredients": list,
		"Filters":     filters,
		"Total":       total,
	}, http.StatusOK)
}

func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "ingredient_form.html", map[string]any{
		"Errors":     map[string]string{},
		"Ingredient": nil,
	}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	ingredient := Ingredient{
		Name: r.PostFormValue("name"),
		Unit: r.PostFormValue("unit"),
	}
	created, err := h.service.Create(r.Context(), ingredient)
	if err != nil {
		h.render(w, r, "ingredient_form.html", map[string]any{
			"Errors":     map[string]string{"general": err.Error()},
			"Ingredient": ingredient,
		}, http.StatusBadRequest)
		return
	}
	h.logger.Info("ingredient created", "id", created.ID, "name", created.Name)
	h.redirectWithFlash(w, r, "/catalog/ingredients", "success", "Ingredient created")
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ingredient ID", http.StatusBadRequest)
		return
	}
	ingredient, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("get ingredient failed", "error", err, "id", id)
		http.Error(w, "Ingredient not found", http.StatusNotFound)
		return
	}
	h.render(w, r, "ingredient_form.html", map[string]any{
		"Errors":     map[string]string{},
		"Ingredient": ingredient,
	}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ingredient ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	ingredient := Ingredient{
		ID:   id,
		Name: r.PostFormValue("name"),
		Unit: r.PostFormValue("unit"),
	}
	if err := h.service.Update(r.Context(), id, ingredient); err != nil {
		h.render(w, r, "ingredient_form.html", map[string]any{
			"Errors":     map[string]string{"general": err.Error()},
			"Ingredient": ingredient,
		}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/catalog/ingredients", "success", "Ingredient updated")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ingredient ID", http.StatusBadRequest)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.redirectWithFlash(w, r, "/catalog/ingredients", "error", internalShared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/catalog/ingredients", "success", "Ingredient deleted")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := internalShared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *internalShared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Ingredients",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", "error", err, "template", template)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := internalShared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(internalShared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
