// Package rest is the HTTP edge: it maps the service layer onto the
// JSON API consumed by the front-end and is the only place where error
// kinds become status codes.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"graphrag-backend/internal/analytics"
	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	"graphrag-backend/internal/graph"
	"graphrag-backend/internal/index"
	"graphrag-backend/internal/middleware"
	"graphrag-backend/internal/search"
	"graphrag-backend/internal/uploads"
	"graphrag-backend/pkg/api"
	appErrors "graphrag-backend/pkg/errors"
	"graphrag-backend/pkg/observability"
)

const (
	serviceName    = "graphrag-backend"
	serviceVersion = "1.0.0"

	// requestTimeout bounds every route except the two search calls,
	// which carry their own much larger deadline.
	requestTimeout = 15 * time.Second
)

// Dependencies carries the services the HTTP edge exposes. Handlers are
// methods on this struct so the router stays a plain wiring function.
type Dependencies struct {
	Config    *config.Config
	Files     *uploads.Service
	Indexing  *index.Supervisor
	Search    *search.Gateway
	Analytics *analytics.Cache
	Topology  *graph.Projector
	Store     *artifact.Store
	Metrics   *observability.Collector
	Logger    *zap.Logger
}

// NewRouter configures the middleware chain and every route.
func NewRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.Config.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Metrics(d.Metrics))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.Error(w, http.StatusNotFound, "route not found", appErrors.ErrorTypeNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, "method not allowed", appErrors.ErrorTypeValidation)
	})

	r.Get("/", d.rootHandler)
	r.Get("/health", d.healthHandler)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout, d.Logger))

			r.Route("/files", func(r chi.Router) {
				r.Post("/upload", d.uploadFileHandler)
				r.Get("/", d.listFilesHandler)
				r.Delete("/{fileID}", d.deleteFileHandler)
			})

			r.Route("/indexing", func(r chi.Router) {
				r.Post("/start", d.startIndexingHandler)
				r.Get("/status", d.indexingStatusHandler)
			})

			r.Get("/search/suggestions", d.searchSuggestionsHandler)
			r.Get("/communities", d.listCommunitiesHandler)
			r.Get("/statistics", d.statisticsHandler)
			r.Get("/entity-types", d.entityTypesHandler)
			r.Get("/relationships/top", d.topRelationshipsHandler)

			r.Route("/graph", func(r chi.Router) {
				r.Get("/topology", d.graphTopologyHandler)
				r.Get("/entity/{entityID}", d.entityAnalysisHandler)
			})
		})

		// The search gateway enforces its own deadline sized for slow
		// local inference; the edge timeout must not preempt it.
		r.Group(func(r chi.Router) {
			r.Post("/search/global", d.globalSearchHandler)
			r.Post("/search/local", d.localSearchHandler)
		})
	})

	return r
}

func (d *Dependencies) rootHandler(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, serviceInfo{
		Status:  "running",
		Service: serviceName,
		Version: serviceVersion,
	})
}

func (d *Dependencies) healthHandler(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}
