package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gastromanager/gastromanager/internal/auth"
	"github.com/gastromanager/gastromanager/internal/journal"
	"github.com/gastromanager/gastromanager/internal/ledger"
	"github.com/gastromanager/gastromanager/internal/masterdata/ingredients"
	"github.com/gastromanager/gastromanager/internal/masterdata/recipes"
	"github.com/gastromanager/gastromanager/internal/observability"
	"github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/users"
	"github.com/gastromanager/gastromanager/internal/view"
	"github.com/gastromanager/gastromanager/jobs"
	"github.com/gastromanager/gastromanager/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Templates          *view.Engine
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	LedgerHandler      *ledger.Handler
	IngredientsHandler *ingredients.Handler
	RecipesHandler     *recipes.Handler
	UsersHandler       *users.Handler
	JournalHandler     *journal.Handler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router serving the whole shop.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		data := view.TemplateData{
			Title:       "GastroManager",
			CSRFToken:   csrfToken,
			Flash:       sess.PopFlash(),
			CurrentPath: r.URL.Path,
		}
		if err := params.Templates.Render(w, "home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	params.AuthHandler.MountRoutes(r)
	params.LedgerHandler.MountRoutes(r)
	r.Route("/catalog", func(r chi.Router) {
		params.IngredientsHandler.MountRoutes(r)
		params.RecipesHandler.MountRoutes(r)
	})
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.JournalHandler != nil {
		r.Route("/journal", params.JournalHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
