package recipes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gastromanager/gastromanager/internal/masterdata/ingredients"
	"github.com/gastromanager/gastromanager/internal/masterdata/shared"
	"github.com/gastromanager/gastromanager/internal/rbac"
	internalShared "github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/view"
)

type Handler struct {
	logger      *slog.Logger
	service     *Service
	ingredients *ingredients.Service
	templates   *view.Engine
	csrf        *internalShared.CSRFManager
	sessions    *internalShared.SessionManager
	rbac        rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, ingredients *ingredients.Service, templates *view.Engine, csrf *internalShared.CSRFManager, sessions *internalShared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, ingredients: ingredients, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers recipe catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalShared.PermRecipesView, internalShared.PermRecipesEdit))
		r.Get("/recipes", h.List)
		r.Get("/recipes/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalShared.PermRecipesEdit))
		r.Get("/recipes/new", h.Form)
		r.Post("/recipes", h.Create)
		r.Get("/recipes/{id}/edit", h.EditForm)
		r.Post("/recipes/{id}/edit", h.Update)
		r.Post("/recipes/{id}/delete", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.FiltersFromRequest(r)
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list recipes failed", "error", err)
		http.Error(w, "Failed to load recipes", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "recipes_list.html", map[string]any{
		"Recipes": list,
		"Filters": filters,
		"Total":   total,
	}, http.StatusOK)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid recipe ID", http.StatusBadRequest)
		return
	}
	recipe, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("get recipe failed", "error", err, "id", id)
		http.Error(w, "Recipe not found", http.StatusNotFound)
		return
	}
	h.render(w, r, "recipe_detail.html", map[string]any{"Recipe": recipe}, http.StatusOK)
}

func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, Recipe{}, map[string]string{}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	recipe, errors := parseRecipeForm(r)
	if len(errors) == 0 {
		created, err := h.service.Create(r.Context(), recipe)
		if err != nil {
			errors["general"] = err.Error()
		} else {
			h.logger.Info("recipe created", "id", created.ID, "flavor", created.Flavor, "is_base", created.IsBase)
			h.redirectWithFlash(w, r, "/catalog/recipes/"+strconv.FormatInt(created.ID, 10), "success", "Recipe created")
			return
		}
	}
	h.renderForm(w, r, recipe, errors, http.StatusBadRequest)
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid recipe ID", http.StatusBadRequest)
		return
	}
	recipe, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("get recipe failed", "error", err, "id", id)
		http.Error(w, "Recipe not found", http.StatusNotFound)
		return
	}
	h.renderForm(w, r, recipe, map[string]string{}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid recipe ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	recipe, errors := parseRecipeForm(r)
	recipe.ID = id
	if len(errors) == 0 {
		if err := h.service.Update(r.Context(), id, recipe); err != nil {
			errors["general"] = err.Error()
		} else {
			h.redirectWithFlash(w, r, "/catalog/recipes/"+strconv.FormatInt(id, 10), "success", "Recipe updated")
			return
		}
	}
	h.renderForm(w, r, recipe, errors, http.StatusBadRequest)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid recipe ID", http.StatusBadRequest)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.redirectWithFlash(w, r, "/catalog/recipes", "error", internalShared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/catalog/recipes", "success", "Recipe deleted")
}

// parseRecipeForm reads the flavor plus parallel ingredient_id/line_quantity
// arrays. Rows with both fields empty are skipped so the form can render
// spare blank lines.
func parseRecipeForm(r *http.Request) (Recipe, map[string]string) {
	errors := make(map[string]string)
	recipe := Recipe{
		Flavor: r.PostFormValue("flavor"),
		IsBase: r.PostFormValue("is_base") == "on",
	}
	ids := r.PostForm["ingredient_id"]
	quantities := r.PostForm["line_quantity"]
	for i := range ids {
		var qtyRaw string
		if i < len(quantities) {
			qtyRaw = quantities[i]
		}
		if ids[i] == "" && qtyRaw == "" {
			continue
		}
		ingredientID, err := strconv.ParseInt(ids[i], 10, 64)
		if err != nil || ingredientID <= 0 {
			errors["lines"] = "Each line needs an ingredient"
			continue
		}
		qty, err := decimal.NewFromString(qtyRaw)
		if err != nil || !qty.IsPositive() {
			errors["lines"] = "Each line needs a positive quantity"
			continue
		}
		recipe.Lines = append(recipe.Lines, Line{IngredientID: ingredientID, Quantity: qty})
	}
	if len(recipe.Lines) == 0 && errors["lines"] == "" {
		errors["lines"] = "Add at least one ingredient line"
	}
	return recipe, errors
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, recipe Recipe, errors map[string]string, status int) {
	options, _, err := h.ingredients.List(r.Context(), shared.ListFilters{Limit: 0})
	if err != nil {
		h.logger.Error("list ingredient options", "error", err)
	}
	h.render(w, r, "recipe_form.html", map[string]any{
		"Recipe":      recipe,
		"Errors":      errors,
		"Ingredients": options,
	}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := internalShared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *internalShared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Recipes",
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
