// Package httpapi exposes the record store, planner, exports and offline
// cache over a JSON REST API.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"creatorstudio/internal/adapters/exports"
	"creatorstudio/internal/core"
	"creatorstudio/internal/offline"
	"creatorstudio/internal/planner"
)

// Deps are the collaborators served by the router. Store is required; a nil
// optional collaborator leaves its routes unmounted.
type Deps struct {
	Store    *core.Store
	Planner  *planner.Planner
	Exports  exports.Scheduler
	Cache    *offline.Coordinator
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	AllowedOrigins []string
	// AssetProxy serves every path outside /api, typically the offline
	// cache handler.
	AssetProxy http.Handler
}

type api struct {
	store   *core.Store
	planner *planner.Planner
	exports exports.Scheduler
	cache   *offline.Coordinator
	log     *zap.Logger
}

// NewRouter wires the API routes.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &api{store: d.Store, planner: d.Planner, exports: d.Exports, cache: d.Cache, log: log}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", a.listProjects)
			r.Post("/", a.createProject)
			r.Post("/default", a.defaultProject)
			r.Get("/{id}", a.getProject)
			r.Patch("/{id}", a.updateProject)
			r.Delete("/{id}", a.deleteProject)
		})
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", a.listNotes)
			r.Post("/", a.createNote)
			r.Get("/{id}", a.getNote)
			r.Patch("/{id}", a.updateNote)
			r.Delete("/{id}", a.deleteNote)
		})
		r.Route("/files", func(r chi.Router) {
			r.Get("/", a.listFiles)
			r.Post("/", a.createFile)
			r.Get("/{id}", a.getFile)
			r.Patch("/{id}", a.updateFile)
			r.Delete("/{id}", a.deleteFile)
		})
		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", a.listScenes)
			r.Post("/", a.createScene)
			r.Get("/{id}", a.getScene)
			r.Delete("/{id}", a.deleteScene)
		})
		r.Get("/profile", a.getProfile)
		r.Patch("/profile", a.saveProfile)

		if a.planner != nil {
			r.Post("/plan", a.plan)
			r.Get("/plan/settings", a.getSettings)
			r.Put("/plan/settings", a.putSettings)
		}
		if a.exports != nil {
			r.Post("/exports", a.createExport)
			r.Get("/exports/{id}", a.getExport)
			r.Get("/exports/{id}/{format}", a.downloadExport)
		}
		if a.cache != nil {
			r.Get("/cache", a.cacheStatus)
			r.Post("/cache/install", a.cacheInstall)
			r.Post("/cache/activate", a.cacheActivate)
		}
	})

	if d.AssetProxy != nil {
		r.Handle("/*", d.AssetProxy)
	}
	return r
}
