// This file contains the provider functions and the Wire provider sets.
// NewContainer assembles the graph by hand so startup errors surface in a
// fixed order; the sets expose the same providers to generated injectors.
package di

import (
	"net/http"

	"github.com/google/wire"
	"go.uber.org/zap"

	"graphrag-backend/internal/analytics"
	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	"graphrag-backend/internal/graph"
	"graphrag-backend/internal/index"
	"graphrag-backend/internal/interfaces/http/rest"
	"graphrag-backend/internal/llm"
	"graphrag-backend/internal/search"
	"graphrag-backend/internal/uploads"
	"graphrag-backend/pkg/observability"
)

// SuperSet combines all provider sets for the complete application.
var SuperSet = wire.NewSet(
	ConfigProviders,
	ArtifactProviders,
	ServiceProviders,
	InterfaceProviders,
	provideContainer,
)

// ConfigProviders provides configuration-related dependencies. These are the
// foundation every other layer depends on.
var ConfigProviders = wire.NewSet(
	provideLogger,
	provideCollector,
	provideSettings,
	provideSettingsWatcher,
)

// ArtifactProviders provides the parquet-backed read layer.
var ArtifactProviders = wire.NewSet(
	provideStore,
	provideAnalytics,
	wire.Bind(new(uploads.GenerationSource), new(*artifact.Store)),
	wire.Bind(new(index.CacheInvalidator), new(*analytics.Cache)),
)

// ServiceProviders provides the application services.
var ServiceProviders = wire.NewSet(
	provideUploads,
	provideSupervisor,
	provideLLMClient,
	provideEngine,
	provideGateway,
	provideProjector,
	wire.Bind(new(search.ChatModel), new(*llm.Client)),
	wire.Bind(new(search.Engine), new(*search.SnapshotEngine)),
)

// InterfaceProviders provides the HTTP edge.
var InterfaceProviders = wire.NewSet(
	provideRouter,
)

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(observability.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

func provideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.MetricsNamespace)
}

func provideStore(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *artifact.Store {
	return artifact.NewStore(cfg.OutputDir, logger, metrics)
}

func provideAnalytics(store *artifact.Store, logger *zap.Logger, metrics *observability.Collector) *analytics.Cache {
	return analytics.NewCache(store, logger, metrics)
}

func provideSettings(cfg *config.Config, logger *zap.Logger) *config.SettingsSource {
	return config.NewSettingsSource(cfg.SettingsPath, logger)
}

func provideSettingsWatcher(source *config.SettingsSource, logger *zap.Logger) (*config.SettingsWatcher, error) {
	return config.NewSettingsWatcher(source, logger)
}

func provideUploads(cfg *config.Config, generations uploads.GenerationSource, logger *zap.Logger, metrics *observability.Collector) (*uploads.Service, error) {
	return uploads.NewService(cfg, generations, logger, metrics)
}

func provideSupervisor(
	cfg *config.Config,
	store *artifact.Store,
	cache index.CacheInvalidator,
	settings *config.SettingsSource,
	logger *zap.Logger,
	metrics *observability.Collector,
) (*index.Supervisor, error) {
	return index.NewSupervisor(cfg, store, cache, settings, logger, metrics)
}

func provideLLMClient(settings *config.SettingsSource, logger *zap.Logger) *llm.Client {
	return llm.NewClient(settings, logger)
}

func provideEngine(cfg *config.Config, store *artifact.Store, model search.ChatModel, logger *zap.Logger) *search.SnapshotEngine {
	return search.NewSnapshotEngine(store, model, cfg.ContextBudget, logger)
}

func provideGateway(cfg *config.Config, engine search.Engine, store *artifact.Store, logger *zap.Logger, metrics *observability.Collector) *search.Gateway {
	return search.NewGateway(cfg, engine, store, logger, metrics)
}

func provideProjector(store *artifact.Store, logger *zap.Logger) *graph.Projector {
	return graph.NewProjector(store, logger)
}

func provideRouter(
	cfg *config.Config,
	files *uploads.Service,
	indexing *index.Supervisor,
	gateway *search.Gateway,
	cache *analytics.Cache,
	projector *graph.Projector,
	store *artifact.Store,
	metrics *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(&rest.Dependencies{
		Config:    cfg,
		Files:     files,
		Indexing:  indexing,
		Search:    gateway,
		Analytics: cache,
		Topology:  projector,
		Store:     store,
		Metrics:   metrics,
		Logger:    logger,
	})
}

// provideContainer assembles the container for Wire builds and performs the
// same post-construction wiring NewContainer does.
func provideContainer(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	store *artifact.Store,
	cache *analytics.Cache,
	settings *config.SettingsSource,
	watcher *config.SettingsWatcher,
	files *uploads.Service,
	supervisor *index.Supervisor,
	client *llm.Client,
	engine *search.SnapshotEngine,
	gateway *search.Gateway,
	projector *graph.Projector,
	router http.Handler,
) *Container {
	c := &Container{
		Config:            cfg,
		Logger:            logger,
		Metrics:           metrics,
		Store:             store,
		Analytics:         cache,
		Settings:          settings,
		SettingsWatcher:   watcher,
		Files:             files,
		Indexing:          supervisor,
		LLM:               client,
		Engine:            engine,
		Search:            gateway,
		Topology:          projector,
		Router:            router,
		shutdownFunctions: make([]func() error, 0),
	}
	c.completeWiring()
	return c
}
