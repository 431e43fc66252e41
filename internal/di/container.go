// Package di wires the application object graph: configuration, logging,
// the artifact store, the indexing supervisor, the search pipeline and the
// HTTP router, with lifecycle management for the pieces that own resources.
package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"graphrag-backend/internal/analytics"
	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	"graphrag-backend/internal/graph"
	"graphrag-backend/internal/index"
	"graphrag-backend/internal/llm"
	"graphrag-backend/internal/search"
	"graphrag-backend/internal/uploads"
	"graphrag-backend/pkg/observability"
)

// Container holds all application dependencies with lifecycle management.
type Container struct {
	// Configuration and cross-cutting concerns
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector

	// Artifact layer
	Store     *artifact.Store
	Analytics *analytics.Cache

	// Indexer settings, hot reloaded from settings.yaml
	Settings        *config.SettingsSource
	SettingsWatcher *config.SettingsWatcher

	// Services
	Files    *uploads.Service
	Indexing *index.Supervisor
	LLM      *llm.Client
	Engine   *search.SnapshotEngine
	Search   *search.Gateway
	Topology *graph.Projector

	// HTTP edge
	Router http.Handler

	shutdownFunctions []func() error
}

// NewContainer creates and initializes the dependency container from an
// already validated configuration.
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{
		Config:            cfg,
		shutdownFunctions: make([]func() error, 0),
	}

	if err := c.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	return c, nil
}

// initialize sets up all dependencies in the correct order.
func (c *Container) initialize() error {
	// 1. Logger and metrics come first so every later step can report.
	logger, err := provideLogger(c.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.Logger = logger
	c.Metrics = provideCollector(c.Config)

	// 2. Artifact store and the analytics cache derived from it. The store
	// loads whatever artifacts exist; an empty output directory is a normal
	// first-run state, not an error.
	c.Store = provideStore(c.Config, c.Logger, c.Metrics)
	c.Analytics = provideAnalytics(c.Store, c.Logger, c.Metrics)

	// 3. Indexer settings with hot reload. A failed watcher downgrades to
	// the settings read at startup instead of failing the boot.
	c.Settings = provideSettings(c.Config, c.Logger)
	watcher, err := provideSettingsWatcher(c.Settings, c.Logger)
	if err != nil {
		c.Logger.Warn("Settings hot reloading unavailable", zap.Error(err))
	} else {
		c.SettingsWatcher = watcher
	}

	// 4. Upload intake.
	files, err := provideUploads(c.Config, c.Store, c.Logger, c.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize upload service: %w", err)
	}
	c.Files = files

	// 5. Indexing supervisor.
	supervisor, err := provideSupervisor(c.Config, c.Store, c.Analytics, c.Settings, c.Logger, c.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize indexing supervisor: %w", err)
	}
	c.Indexing = supervisor

	// 6. Search pipeline: inference client, snapshot engine, gateway.
	c.LLM = provideLLMClient(c.Settings, c.Logger)
	c.Engine = provideEngine(c.Config, c.Store, c.LLM, c.Logger)
	c.Search = provideGateway(c.Config, c.Engine, c.Store, c.Logger, c.Metrics)

	// 7. Graph projection for the visualization endpoint.
	c.Topology = provideProjector(c.Store, c.Logger)

	// 8. HTTP router.
	c.Router = provideRouter(
		c.Config, c.Files, c.Indexing, c.Search, c.Analytics,
		c.Topology, c.Store, c.Metrics, c.Logger,
	)

	c.completeWiring()

	c.Logger.Info("Dependency container initialized",
		zap.String("output_dir", c.Config.OutputDir),
		zap.Int64("artifact_generation", c.Store.Generation()),
		zap.Bool("auto_index_on_upload", c.Config.Features.AutoIndexOnUpload),
	)
	return nil
}

// completeWiring performs the post-construction wiring shared by the manual
// and Wire composition paths. The supervisor and the upload service refer to
// each other through small interfaces, so one side is attached after
// construction here, and the shutdown stack is registered in dependency
// order: the logger flushes last so everything else can still report.
func (c *Container) completeWiring() {
	c.addShutdownFunction(func() error {
		// Sync flushes buffered entries. Its error is ignored because
		// syncing stdout fails on some platforms even when nothing was lost.
		_ = c.Logger.Sync()
		return nil
	})

	if c.SettingsWatcher != nil {
		c.SettingsWatcher.OnChange(func(s *config.Settings) {
			c.Logger.Info("Indexer settings reloaded",
				zap.String("chat_model", s.LLM.Model),
				zap.String("embedding_model", s.Embeddings.LLM.Model),
			)
		})
		c.addShutdownFunction(func() error {
			c.SettingsWatcher.Stop()
			return nil
		})
	}

	c.Indexing.SetFileOutcomes(c.Files)
	if c.Config.Features.AutoIndexOnUpload {
		c.Files.SetStarter(c.Indexing)
	}
	c.addShutdownFunction(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.Config.ShutdownTimeout)
		defer cancel()
		return c.Indexing.Shutdown(ctx)
	})
}

// addShutdownFunction adds a function to be called during container shutdown.
func (c *Container) addShutdownFunction(fn func() error) {
	c.shutdownFunctions = append(c.shutdownFunctions, fn)
}

// Shutdown gracefully releases the container's resources. Shutdown functions
// run in reverse registration order so dependents stop before their
// dependencies.
func (c *Container) Shutdown(ctx context.Context) error {
	c.Logger.Info("Shutting down dependency container")

	var errs []error
	for i := len(c.shutdownFunctions) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown aborted: %w", ctx.Err())
		default:
		}
		if err := c.shutdownFunctions[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("Error during shutdown", zap.Error(err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors", len(errs))
	}
	return nil
}
