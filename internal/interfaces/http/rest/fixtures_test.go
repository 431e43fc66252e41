package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphrag-backend/internal/analytics"
	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	"graphrag-backend/internal/graph"
	"graphrag-backend/internal/index"
	"graphrag-backend/internal/search"
	"graphrag-backend/internal/uploads"
	"graphrag-backend/pkg/observability"
)

// Fixture rows mirror the columns the artifact loader reads.

type entityFixture struct {
	ID          string `parquet:"id,optional"`
	Title       string `parquet:"title,optional"`
	Type        string `parquet:"type,optional"`
	Description string `parquet:"description,optional"`
}

type relationshipFixture struct {
	ID          string  `parquet:"id,optional"`
	Source      string  `parquet:"source,optional"`
	Target      string  `parquet:"target,optional"`
	Description string  `parquet:"description,optional"`
	Weight      float64 `parquet:"weight,optional"`
}

type communityFixture struct {
	Title string `parquet:"title,optional"`
	Level int64  `parquet:"level,optional"`
}

type reportFixture struct {
	ID          string  `parquet:"id,optional"`
	Community   int64   `parquet:"community,optional"`
	Title       string  `parquet:"title,optional"`
	Level       int64   `parquet:"level,optional"`
	Rank        float64 `parquet:"rank,optional"`
	Summary     string  `parquet:"summary,optional"`
	FullContent string  `parquet:"full_content,optional"`
}

type textUnitFixture struct {
	ID        string   `parquet:"id,optional"`
	Text      string   `parquet:"text,optional"`
	NTokens   int64    `parquet:"n_tokens,optional"`
	EntityIDs []string `parquet:"entity_ids,list,optional"`
}

type nodeFixture struct {
	Title  string `parquet:"title,optional"`
	Degree int64  `parquet:"degree,optional"`
	Level  int64  `parquet:"level,optional"`
}

func writeRows[T any](t *testing.T, dir, name string, rows []T) {
	t.Helper()
	require.NoError(t, parquet.WriteFile[T](filepath.Join(dir, name), rows))
}

// writeAPICorpus writes one complete generation small enough to assert
// every derived number by hand: four entities, four relationships, three
// community reports and three text units.
func writeAPICorpus(t *testing.T, dir string) {
	t.Helper()

	writeRows(t, dir, artifact.EntitiesFile, []entityFixture{
		{ID: "e1", Title: "ALPHA CORP", Type: "ORGANIZATION", Description: "Industrial conglomerate"},
		{ID: "e2", Title: "BOB", Type: "PERSON", Description: "Chief engineer at Alpha Corp"},
		{ID: "e3", Title: "CAROL", Type: "PERSON", Description: "Research director"},
		{ID: "e4", Title: "DELTA LAB", Type: "ORGANIZATION", Description: "Research facility"},
	})

	writeRows(t, dir, artifact.NodesFile, []nodeFixture{
		{Title: "ALPHA CORP", Degree: 5, Level: 0},
		{Title: "BOB", Degree: 2, Level: 0},
		{Title: "CAROL", Degree: 1, Level: 0},
		{Title: "DELTA LAB", Degree: 4, Level: 0},
	})

	writeRows(t, dir, artifact.RelationshipsFile, []relationshipFixture{
		{ID: "r1", Source: "ALPHA CORP", Target: "BOB", Description: "employs", Weight: 4},
		{ID: "r2", Source: "ALPHA CORP", Target: "CAROL", Description: "employs", Weight: 3},
		{ID: "r3", Source: "ALPHA CORP", Target: "DELTA LAB", Description: "owns", Weight: 2},
		{ID: "r4", Source: "BOB", Target: "CAROL", Description: "collaborates with", Weight: 1},
	})

	writeRows(t, dir, artifact.CommunityReportsFile, []reportFixture{
		{ID: "c0", Community: 0, Title: "Community 0", Level: 0, Rank: 9.5,
			Summary: "Core industrial cluster", FullContent: "# Community 0\nDetails."},
		{ID: "c1", Community: 1, Title: "Community 1", Level: 1, Rank: 8.0,
			Summary: "Research staff"},
		{ID: "c2", Community: 2, Title: "Community 2", Level: 2, Rank: 7.0,
			Summary: "Facilities"},
	})

	writeRows(t, dir, artifact.CommunitiesFile, []communityFixture{
		{Title: "Community 0", Level: 0},
		{Title: "Community 1", Level: 1},
		{Title: "Community 2", Level: 2},
	})

	writeRows(t, dir, artifact.TextUnitsFile, []textUnitFixture{
		{ID: "t1", Text: "Alpha Corp acquired Delta Lab.", NTokens: 12, EntityIDs: []string{"e1", "e4"}},
		{ID: "t2", Text: "Bob works with Carol.", NTokens: 8, EntityIDs: []string{"e2", "e3"}},
		{ID: "t3", Text: "Quarterly financial note.", NTokens: 6, EntityIDs: []string{}},
	})
}

// stubEngine stands in for the snapshot engine so edge tests exercise
// routing, decoding and status mapping without a model.
type stubEngine struct {
	mu     sync.Mutex
	result *search.Result
	err    error
	block  bool
	params []search.Params
}

func (s *stubEngine) GlobalSearch(ctx context.Context, p search.Params) (*search.Result, error) {
	return s.answer(ctx, p)
}

func (s *stubEngine) LocalSearch(ctx context.Context, p search.Params) (*search.Result, error) {
	return s.answer(ctx, p)
}

func (s *stubEngine) answer(ctx context.Context, p search.Params) (*search.Result, error) {
	s.mu.Lock()
	s.params = append(s.params, p)
	result, err, block := s.result, s.err, s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return &search.Result{Response: "stub answer"}, nil
}

func (s *stubEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.params)
}

func (s *stubEngine) lastParams() search.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.params) == 0 {
		return search.Params{}
	}
	return s.params[len(s.params)-1]
}

type harnessOptions struct {
	corpus        bool
	indexerScript string
	searchTimeout time.Duration
}

// harness wires the full dependency graph over temp directories, with the
// inference engine stubbed out.
type harness struct {
	t       *testing.T
	cfg     *config.Config
	handler http.Handler
	engine  *stubEngine
	store   *artifact.Store
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	if opts.indexerScript == "" {
		opts.indexerScript = "exit 0"
	}
	if opts.searchTimeout == 0 {
		opts.searchTimeout = 5 * time.Second
	}

	root := t.TempDir()
	cfg := &config.Config{
		Environment:      "test",
		CORSOrigin:       "http://localhost:5173",
		RootDir:          root,
		InputDir:         filepath.Join(root, "input"),
		OutputDir:        filepath.Join(root, "output"),
		SettingsPath:     filepath.Join(root, "settings.yaml"),
		IndexerCommand:   []string{"/bin/sh", "-c", opts.indexerScript},
		StopGrace:        2 * time.Second,
		SearchTimeout:    opts.searchTimeout,
		MetricsNamespace: "graphrag",
	}

	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	if opts.corpus {
		writeAPICorpus(t, cfg.OutputDir)
	}

	logger := zap.NewNop()
	metrics := observability.NewCollector(cfg.MetricsNamespace)
	store := artifact.NewStore(cfg.OutputDir, logger, metrics)
	cache := analytics.NewCache(store, logger, metrics)
	settings := config.NewSettingsSource(cfg.SettingsPath, logger)

	files, err := uploads.NewService(cfg, store, logger, metrics)
	require.NoError(t, err)

	supervisor, err := index.NewSupervisor(cfg, store, cache, settings, logger, metrics)
	require.NoError(t, err)
	supervisor.SetFileOutcomes(files)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, supervisor.Shutdown(ctx))
	})

	engine := &stubEngine{}
	deps := &Dependencies{
		Config:    cfg,
		Files:     files,
		Indexing:  supervisor,
		Search:    search.NewGateway(cfg, engine, store, logger, metrics),
		Analytics: cache,
		Topology:  graph.NewProjector(store, logger),
		Store:     store,
		Metrics:   metrics,
		Logger:    logger,
	}

	return &harness{
		t:       t,
		cfg:     cfg,
		handler: NewRouter(deps),
		engine:  engine,
		store:   store,
	}
}

func (h *harness) do(method, path string, body io.Reader) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	return h.do(http.MethodGet, path, nil)
}

func (h *harness) postJSON(path, body string) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, path, strings.NewReader(body))
}

func (h *harness) upload(filename string, content []byte) *httptest.ResponseRecorder {
	h.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(h.t, err)
	_, err = part.Write(content)
	require.NoError(h.t, err)
	require.NoError(h.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}
