// Package artifact reads the parquet files produced by the indexing
// pipeline and serves them as immutable, generation-numbered snapshots.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	appErrors "graphrag-backend/pkg/errors"
	"graphrag-backend/pkg/observability"
)

// Store owns the current artifact snapshot. Reload builds a fresh
// snapshot off to the side and swaps it in atomically, so readers either
// see the previous complete generation or the new one, never a mix.
type Store struct {
	dir     string
	logger  *zap.Logger
	metrics *observability.Collector

	mu         sync.RWMutex
	snap       *Snapshot
	generation int64
}

// NewStore creates a store over the output directory and attempts an
// initial load. A missing or incomplete artifact set is not an error at
// construction: the store serves the empty state until indexing produces
// a complete generation.
func NewStore(dir string, logger *zap.Logger, metrics *observability.Collector) *Store {
	s := &Store{
		dir:     dir,
		logger:  logger,
		metrics: metrics,
	}

	if err := s.Reload(); err != nil {
		if appErrors.IsNotReady(err) {
			logger.Info("No artifacts available yet, serving empty state",
				zap.String("dir", dir),
			)
		} else {
			logger.Warn("Initial artifact load failed, serving empty state",
				zap.String("dir", dir),
				zap.Error(err),
			)
		}
	}
	return s
}

// Reload discovers and loads a complete artifact generation. On any
// failure the previous snapshot stays in service and the error is
// returned; on success the new snapshot replaces it and the generation
// counter advances.
func (s *Store) Reload() error {
	if missing := s.missingFiles(); len(missing) > 0 {
		return appErrors.NewNotReady(fmt.Sprintf(
			"no artifacts available: missing %s", strings.Join(missing, ", ")))
	}

	entities, err := readArtifact[entityRow](s.dir, EntitiesFile)
	if err != nil {
		return err
	}
	relationships, err := readArtifact[relationshipRow](s.dir, RelationshipsFile)
	if err != nil {
		return err
	}
	communities, err := readArtifact[communityRow](s.dir, CommunitiesFile)
	if err != nil {
		return err
	}
	reports, err := readArtifact[reportRow](s.dir, CommunityReportsFile)
	if err != nil {
		return err
	}
	textUnits, err := readArtifact[textUnitRow](s.dir, TextUnitsFile)
	if err != nil {
		return err
	}
	nodes, err := readArtifact[nodeRow](s.dir, NodesFile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.generation++
	snap := newSnapshot(s.generation, entities, relationships, communities, reports, textUnits, nodes)
	s.snap = snap
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ArtifactGeneration.Set(float64(snap.Generation()))
	}
	s.logger.Info("Artifacts loaded",
		zap.Int64("generation", snap.Generation()),
		zap.Int("entities", snap.EntityCount()),
		zap.Int("relationships", snap.RelationshipCount()),
		zap.Int("communities", snap.CommunityCount()),
		zap.Int("text_units", snap.TextUnitCount()),
		zap.Bool("embeddings", snap.HasEmbeddings()),
	)
	return nil
}

// Snapshot returns the current generation, or a NotReady error when no
// complete generation has been loaded.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, appErrors.NewNotReady("no artifacts available: upload files and run indexing first")
	}
	return s.snap, nil
}

// Current returns the current snapshot or nil. Callers that render an
// explicit empty state use this instead of Snapshot.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Generation returns the current generation number, 0 when none loaded.
func (s *Store) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return 0
	}
	return s.snap.Generation()
}

// Dir returns the artifact directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// missingFiles reports which required artifacts are absent.
func (s *Store) missingFiles() []string {
	var missing []string
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// readArtifact loads one parquet file into row structs.
func readArtifact[T any](dir, name string) ([]T, error) {
	rows, err := parquet.ReadFile[T](filepath.Join(dir, name))
	if err != nil {
		return nil, appErrors.NewInternal(fmt.Sprintf("reading artifact %s", name), err)
	}
	return rows, nil
}
