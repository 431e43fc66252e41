package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	appErrors "graphrag-backend/pkg/errors"
	"graphrag-backend/pkg/observability"
)

// Gateway fronts the engine with the rules the HTTP surface relies on:
// queries are validated, a generation must exist, every call carries a
// deadline, and engine failures surface as typed errors with their
// message preserved.
type Gateway struct {
	engine  Engine
	store   *artifact.Store
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewGateway creates the gateway. The per-call deadline comes from
// configuration and defaults to five minutes, sized for a local
// inference server answering on CPU.
func NewGateway(cfg *config.Config, engine Engine, store *artifact.Store, logger *zap.Logger, metrics *observability.Collector) *Gateway {
	timeout := cfg.SearchTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Gateway{
		engine:  engine,
		store:   store,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Global runs a community-report search.
func (g *Gateway) Global(ctx context.Context, params Params) (*Result, error) {
	return g.run(ctx, "global", g.engine.GlobalSearch, params)
}

// Local runs an entity-neighborhood search.
func (g *Gateway) Local(ctx context.Context, params Params) (*Result, error) {
	return g.run(ctx, "local", g.engine.LocalSearch, params)
}

func (g *Gateway) run(ctx context.Context, mode string, call func(context.Context, Params) (*Result, error), params Params) (*Result, error) {
	params.Query = strings.TrimSpace(params.Query)
	if params.Query == "" {
		g.observe(mode, "rejected", 0)
		return nil, appErrors.NewValidation("query cannot be empty")
	}

	if g.store.Current() == nil {
		g.observe(mode, "not_ready", 0)
		return nil, appErrors.NewNotReady("no artifacts available; run indexing first")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	result, err := call(ctx, params)
	duration := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.observe(mode, "timeout", duration)
			g.logger.Warn("Search timed out",
				zap.String("mode", mode),
				zap.Duration("after", duration),
			)
			return nil, appErrors.NewTimeout(fmt.Sprintf("%s search exceeded its %s deadline", mode, g.timeout))
		}

		g.observe(mode, "error", duration)
		g.logger.Error("Search failed",
			zap.String("mode", mode),
			zap.Duration("duration", duration),
			zap.Error(err),
		)

		var appErr *appErrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.NewUpstream(fmt.Sprintf("%s search failed: %v", mode, err), err)
	}

	g.observe(mode, "ok", duration)
	g.logger.Info("Search served",
		zap.String("mode", mode),
		zap.Duration("duration", duration),
		zap.Int("response_chars", len(result.Response)),
	)
	return result, nil
}

func (g *Gateway) observe(mode, status string, duration time.Duration) {
	if g.metrics != nil {
		g.metrics.ObserveSearch(mode, status, duration)
	}
}

// staticSuggestions seed the search box before any content exists and pad
// derived prompts afterwards.
var staticSuggestions = []string{
	"What are the main topics in this document collection?",
	"Summarize the most important findings",
	"What are the key relationships between entities?",
	"Which communities of related topics exist?",
}

const suggestionCount = 4

// Suggestions returns four search prompts. With a generation present the
// best-connected entities seed the first prompts; the static list pads
// the remainder. No model call is made.
func (g *Gateway) Suggestions() []string {
	out := make([]string, 0, suggestionCount)

	if snap := g.store.Current(); snap != nil {
		entities := snap.Entities(0)
		sort.SliceStable(entities, func(i, j int) bool {
			if entities[i].Degree != entities[j].Degree {
				return entities[i].Degree > entities[j].Degree
			}
			return entities[i].Title < entities[j].Title
		})

		for i, ent := range entities {
			if i >= 10 || len(out) == suggestionCount {
				break
			}
			if len(ent.Title) <= 2 {
				continue
			}
			out = append(out, fmt.Sprintf("Analyze the content related to %s", ent.Title))
		}
	}

	for _, s := range staticSuggestions {
		if len(out) == suggestionCount {
			break
		}
		out = append(out, s)
	}
	return out
}
