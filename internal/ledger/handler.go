package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gastromanager/gastromanager/internal/observability"
	"github.com/gastromanager/gastromanager/internal/rbac"
	"github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/view"
)

// CatalogOption is a select-box entry sourced from master data.
type CatalogOption struct {
	ID     int64
	Name   string
	IsBase bool
}

// CatalogPort supplies select options for the ledger forms.
type CatalogPort interface {
	IngredientOptions(ctx context.Context) ([]CatalogOption, error)
	RecipeOptions(ctx context.Context) ([]CatalogOption, error)
}

// Handler wires HTTP endpoints for inventory, production and stock pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalog   CatalogPort
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
	metrics   *observability.Metrics
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, catalog CatalogPort, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, catalog: catalog, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac, metrics: metrics}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermInventoryView, shared.PermInventoryEdit))
			r.Get("/", h.handleBalances)
			r.Get("/shipments", h.handleShipments)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
			r.Get("/receive", h.showReceiveForm)
			r.Post("/receive", h.handleReceive)
		})
	})
	r.Route("/production", func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionEdit))
		r.Get("/", h.showProductionForm)
		r.Post("/", h.handleProduce)
		r.Get("/runs", h.handleRuns)
		r.Get("/calculator", h.showCalculator)
		r.Post("/calculator", h.handleCalculate)
	})
	r.Route("/stock", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermStockView, shared.PermStockEdit))
			r.Get("/", h.handleStockLevels)
			r.Get("/takeouts", h.handleTakeouts)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermStockEdit))
			r.Get("/takeout", h.showTakeoutForm)
			r.Post("/takeout", h.handleTakeout)
		})
	})
}

type receiveForm struct {
	IngredientID   int64
	Quantity       string
	LotNumber      string
	ExpirationDate string
	Temperature    string
	Notes          string
	IdempotencyKey string
}

type produceForm struct {
	RecipeID       int64
	Quantity       string
	Container      string
	IdempotencyKey string
}

type takeoutForm struct {
	StockID        int64
	Quantity       string
	IdempotencyKey string
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.service.Balances(r.Context())
	if err != nil {
		h.logger.Error("list ingredient balances", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "inventory.html", "Ingredient Inventory", http.StatusOK, map[string]any{"Balances": balances})
}

func (h *Handler) handleShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.service.Shipments(r.Context(), listLimit(r))
	if err != nil {
		h.logger.Error("list shipments", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "shipments.html", "Incoming Shipments", http.StatusOK, map[string]any{"Shipments": shipments})
}

func (h *Handler) showReceiveForm(w http.ResponseWriter, r *http.Request) {
	h.renderReceive(w, r, receiveForm{IdempotencyKey: uuid.NewString()}, map[string]string{}, http.StatusOK)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form, input, errors := parseReceiveForm(r)
	if len(errors) == 0 {
		input.ActorID = currentUserID(sess)
		_, err := h.service.Receive(r.Context(), input)
		h.metrics.ObserveLedgerOp("receive", err)
		if err != nil {
			h.logger.Error("receive shipment failed", slog.Any("error", err))
			errors["general"] = shared.UserSafeMessage(err)
		} else {
			if sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Shipment registered and inventory updated"})
			}
			http.Redirect(w, r, "/inventory", http.StatusSeeOther)
			return
		}
	}
	h.renderReceive(w, r, form, errors, http.StatusBadRequest)
}

func (h *Handler) showProductionForm(w http.ResponseWriter, r *http.Request) {
	h.renderProduction(w, r, produceForm{IdempotencyKey: uuid.NewString()}, map[string]string{}, http.StatusOK)
}

func (h *Handler) handleProduce(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form, input, errors := parseProduceForm(r)
	if len(errors) == 0 {
		input.ActorID = currentUserID(sess)
		run, err := h.service.Produce(r.Context(), input)
		h.metrics.ObserveLedgerOp("produce", err)
		if err != nil {
			h.logger.Error("production failed", slog.Any("error", err),
				slog.Int64("recipe_id", input.RecipeID))
			errors["general"] = shared.UserSafeMessage(err)
		} else {
			h.logger.Info("production posted",
				slog.Int64("run_id", run.ID),
				slog.String("flavor", run.Flavor),
				slog.String("quantity", run.Quantity.String()))
			if sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Production recorded"})
			}
			http.Redirect(w, r, "/production/runs", http.StatusSeeOther)
			return
		}
	}
	h.renderProduction(w, r, form, errors, http.StatusBadRequest)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.Runs(r.Context(), listLimit(r))
	if err != nil {
		h.logger.Error("list production runs", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "production_runs.html", "Production History", http.StatusOK, map[string]any{"Runs": runs})
}

// showCalculator lets staff ask "can we make N of this flavor?" without
// committing anything.
func (h *Handler) showCalculator(w http.ResponseWriter, r *http.Request) {
	h.renderCalculator(w, r, produceForm{}, "", map[string]string{}, http.StatusOK)
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, input, errors := parseProduceForm(r)
	// Container choice does not affect availability.
	delete(errors, "container")
	var verdict string
	if len(errors) == 0 {
		err := h.service.CheckAvailability(r.Context(), input.RecipeID, input.Quantity)
		switch {
		case err == nil:
			verdict = "Sufficient ingredients are available."
		default:
			verdict = shared.UserSafeMessage(err)
		}
	}
	h.renderCalculator(w, r, form, verdict, errors, http.StatusOK)
}

func (h *Handler) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.StockLevels(r.Context())
	if err != nil {
		h.logger.Error("list stock levels", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "stock.html", "Ice Cream Stock", http.StatusOK, map[string]any{"Stocks": stocks})
}

func (h *Handler) handleTakeouts(w http.ResponseWriter, r *http.Request) {
	takeouts, err := h.service.Takeouts(r.Context(), listLimit(r))
	if err != nil {
		h.logger.Error("list takeouts", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "takeouts.html", "Stock Takeouts", http.StatusOK, map[string]any{"Takeouts": takeouts})
}

func (h *Handler) showTakeoutForm(w http.ResponseWriter, r *http.Request) {
	h.renderTakeout(w, r, takeoutForm{IdempotencyKey: uuid.NewString()}, map[string]string{}, http.StatusOK)
}

func (h *Handler) handleTakeout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form, input, errors := parseTakeoutForm(r)
	if len(errors) == 0 {
		input.ActorID = currentUserID(sess)
		_, err := h.service.TakeOut(r.Context(), input)
		h.metrics.ObserveLedgerOp("takeout", err)
		if err != nil {
			h.logger.Error("stock takeout failed", slog.Any("error", err),
				slog.Int64("stock_id", input.StockID))
			errors["general"] = shared.UserSafeMessage(err)
		} else {
			if sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Stock takeout recorded"})
			}
			http.Redirect(w, r, "/stock", http.StatusSeeOther)
			return
		}
	}
	h.renderTakeout(w, r, form, errors, http.StatusBadRequest)
}

func (h *Handler) renderReceive(w http.ResponseWriter, r *http.Request, form receiveForm, errors map[string]string, status int) {
	options, err := h.catalog.IngredientOptions(r.Context())
	if err != nil {
		h.logger.Error("load ingredient options", slog.Any("error", err))
	}
	h.render(w, r, "receive_form.html", "Register Shipment", status, map[string]any{"Form": form, "Errors": errors, "Ingredients": options})
}

func (h *Handler) renderProduction(w http.ResponseWriter, r *http.Request, form produceForm, errors map[string]string, status int) {
	options, err := h.catalog.RecipeOptions(r.Context())
	if err != nil {
		h.logger.Error("load recipe options", slog.Any("error", err))
	}
	h.render(w, r, "production_form.html", "Produce Ice Cream", status, map[string]any{
		"Form": form, "Errors": errors, "Recipes": options, "Containers": containerChoices(),
	})
}

func (h *Handler) renderCalculator(w http.ResponseWriter, r *http.Request, form produceForm, verdict string, errors map[string]string, status int) {
	options, err := h.catalog.RecipeOptions(r.Context())
	if err != nil {
		h.logger.Error("load recipe options", slog.Any("error", err))
	}
	h.render(w, r, "production_calculator.html", "Production Calculator", status, map[string]any{
		"Form": form, "Errors": errors, "Recipes": options, "Verdict": verdict,
	})
}

func (h *Handler) renderTakeout(w http.ResponseWriter, r *http.Request, form takeoutForm, errors map[string]string, status int) {
	stocks, err := h.service.StockLevels(r.Context())
	if err != nil {
		h.logger.Error("load stock levels", slog.Any("error", err))
	}
	h.render(w, r, "takeout_form.html", "Stock Takeout", status, map[string]any{"Form": form, "Errors": errors, "Stocks": stocks})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, status int, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render page", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func parseReceiveForm(r *http.Request) (receiveForm, ReceiveInput, map[string]string) {
	errors := make(map[string]string)
	form := receiveForm{
		Quantity:       strings.TrimSpace(r.PostFormValue("quantity")),
		LotNumber:      strings.TrimSpace(r.PostFormValue("lot_number")),
		ExpirationDate: strings.TrimSpace(r.PostFormValue("expiration_date")),
		Temperature:    strings.TrimSpace(r.PostFormValue("temperature")),
		Notes:          strings.TrimSpace(r.PostFormValue("notes")),
		IdempotencyKey: strings.TrimSpace(r.PostFormValue("idempotency_key")),
	}
	input := ReceiveInput{LotNumber: form.LotNumber, Notes: form.Notes, IdempotencyKey: form.IdempotencyKey}
	if id, err := strconv.ParseInt(r.PostFormValue("ingredient_id"), 10, 64); err == nil && id > 0 {
		form.IngredientID = id
		input.IngredientID = id
	} else {
		errors["ingredient_id"] = "Choose an ingredient"
	}
	if qty, err := decimal.NewFromString(form.Quantity); err == nil && qty.IsPositive() {
		input.Quantity = qty
	} else {
		errors["quantity"] = "Quantity must be a positive number"
	}
	if form.ExpirationDate != "" {
		if exp, err := time.Parse("2006-01-02", form.ExpirationDate); err == nil {
			input.ExpirationDate = &exp
		} else {
			errors["expiration_date"] = "Expiration date is not valid"
		}
	}
	if form.Temperature != "" {
		if temp, err := strconv.Atoi(form.Temperature); err == nil {
			input.Temperature = &temp
		} else {
			errors["temperature"] = "Temperature must be a whole number"
		}
	}
	return form, input, errors
}

func parseProduceForm(r *http.Request) (produceForm, ProduceInput, map[string]string) {
	errors := make(map[string]string)
	form := produceForm{
		Quantity:       strings.TrimSpace(r.PostFormValue("quantity")),
		Container:      strings.TrimSpace(r.PostFormValue("container")),
		IdempotencyKey: strings.TrimSpace(r.PostFormValue("idempotency_key")),
	}
	input := ProduceInput{Container: ContainerSize(form.Container), IdempotencyKey: form.IdempotencyKey}
	if id, err := strconv.ParseInt(r.PostFormValue("recipe_id"), 10, 64); err == nil && id > 0 {
		form.RecipeID = id
		input.RecipeID = id
	} else {
		errors["recipe_id"] = "Choose a recipe"
	}
	if qty, err := decimal.NewFromString(form.Quantity); err == nil && qty.IsPositive() {
		input.Quantity = qty
	} else {
		errors["quantity"] = "Quantity must be a positive number"
	}
	if form.Container != "" && !ValidContainer(input.Container) {
		errors["container"] = "Container size is not valid"
	}
	return form, input, errors
}

func parseTakeoutForm(r *http.Request) (takeoutForm, TakeOutInput, map[string]string) {
	errors := make(map[string]string)
	form := takeoutForm{
		Quantity:       strings.TrimSpace(r.PostFormValue("quantity")),
		IdempotencyKey: strings.TrimSpace(r.PostFormValue("idempotency_key")),
	}
	input := TakeOutInput{IdempotencyKey: form.IdempotencyKey}
	if id, err := strconv.ParseInt(r.PostFormValue("stock_id"), 10, 64); err == nil && id > 0 {
		form.StockID = id
		input.StockID = id
	} else {
		errors["stock_id"] = "Choose a stock entry"
	}
	if qty, err := decimal.NewFromString(form.Quantity); err == nil && qty.IsPositive() {
		input.Quantity = qty
	} else {
		errors["quantity"] = "Quantity must be a positive number"
	}
	return form, input, errors
}

func containerChoices() []ContainerSize {
	return []ContainerSize{ContainerHalfLitre, ContainerThreeLitre, ContainerSixLitre}
}

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return 100
}

func currentUserID(sess *shared.Session) int64 {
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}
