package index

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	"graphrag-backend/internal/domain"
	appErrors "graphrag-backend/pkg/errors"
)

type stubCache struct {
	mu            sync.Mutex
	invalidations int
}

func (c *stubCache) Invalidate() {
	c.mu.Lock()
	c.invalidations++
	c.mu.Unlock()
}

func (c *stubCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

type stubFiles struct {
	mu      sync.Mutex
	indexed int
	failed  int
}

func (f *stubFiles) MarkIndexed() {
	f.mu.Lock()
	f.indexed++
	f.mu.Unlock()
}

func (f *stubFiles) MarkError() {
	f.mu.Lock()
	f.failed++
	f.mu.Unlock()
}

func (f *stubFiles) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexed, f.failed
}

type harness struct {
	sup    *Supervisor
	store  *artifact.Store
	cache  *stubCache
	files  *stubFiles
	outDir string
}

// newHarness builds a supervisor whose "indexer" is a shell script. The
// script receives --root and --verbose as positional arguments, which it
// ignores.
func newHarness(t *testing.T, script string) *harness {
	t.Helper()
	root := t.TempDir()
	outDir := filepath.Join(root, "output")
	cfg := &config.Config{
		RootDir:        root,
		OutputDir:      outDir,
		IndexerCommand: []string{"/bin/sh", "-c", script},
		StopGrace:      2 * time.Second,
	}

	store := artifact.NewStore(outDir, zap.NewNop(), nil)
	cache := &stubCache{}
	files := &stubFiles{}

	sup, err := NewSupervisor(cfg, store, cache, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	sup.SetFileOutcomes(files)

	return &harness{sup: sup, store: store, cache: cache, files: files, outDir: outDir}
}

// waitIdle blocks until the run reaches a terminal state and returns it.
func waitIdle(t *testing.T, sup *Supervisor) domain.JobStatus {
	t.Helper()
	require.Eventually(t, func() bool {
		return !sup.Status().IsRunning
	}, 15*time.Second, 10*time.Millisecond, "run never finished")
	return sup.Status()
}

// Minimal fixture rows for a loadable generation.

type entityFixture struct {
	ID     string `parquet:"id,optional"`
	Title  string `parquet:"title,optional"`
	Degree int64  `parquet:"degree,optional"`
}

type relationshipFixture struct {
	ID     string  `parquet:"id,optional"`
	Source string  `parquet:"source,optional"`
	Target string  `parquet:"target,optional"`
	Weight float64 `parquet:"weight,optional"`
}

type communityFixture struct {
	Title string `parquet:"title,optional"`
	Level int64  `parquet:"level,optional"`
}

type reportFixture struct {
	ID    string  `parquet:"id,optional"`
	Title string  `parquet:"title,optional"`
	Rank  float64 `parquet:"rank,optional"`
}

type textUnitFixture struct {
	ID   string `parquet:"id,optional"`
	Text string `parquet:"text,optional"`
}

type nodeFixture struct {
	Title  string `parquet:"title,optional"`
	Degree int64  `parquet:"degree,optional"`
}

func writeRows[T any](t *testing.T, dir, name string, rows []T) {
	t.Helper()
	require.NoError(t, parquet.WriteFile[T](filepath.Join(dir, name), rows))
}

func writeGeneration(t *testing.T, dir string) {
	t.Helper()
	writeRows(t, dir, artifact.EntitiesFile, []entityFixture{{ID: "e1", Title: "SOLO", Degree: 1}})
	writeRows(t, dir, artifact.RelationshipsFile, []relationshipFixture{})
	writeRows(t, dir, artifact.CommunitiesFile, []communityFixture{})
	writeRows(t, dir, artifact.CommunityReportsFile, []reportFixture{})
	writeRows(t, dir, artifact.TextUnitsFile, []textUnitFixture{})
	writeRows(t, dir, artifact.NodesFile, []nodeFixture{})
}

func TestRunSucceeds(t *testing.T) {
	h := newHarness(t, `
echo "creating chunks"
echo "entity extraction"
echo "building relationship graph"
echo "community detection"
echo "generating embeddings"
exit 0`)
	writeGeneration(t, h.outDir)

	st, err := h.sup.Start()
	require.NoError(t, err)
	assert.True(t, st.IsRunning)
	assert.Zero(t, st.Progress)
	require.NotNil(t, st.StartedAt)

	// The moment is_indexing reads false the new generation must already
	// be in service.
	var genAtFlip int64 = -1
	require.Eventually(t, func() bool {
		if h.sup.Status().IsRunning {
			return false
		}
		genAtFlip = h.store.Generation()
		return true
	}, 15*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, genAtFlip, int64(1))

	final := h.sup.Status()
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "completed", final.Message)
	require.NotNil(t, final.ExitStatus)
	assert.Zero(t, *final.ExitStatus)
	require.NotNil(t, final.FinishedAt)
	assert.False(t, final.FinishedAt.Before(*final.StartedAt))

	assert.Equal(t, 1, h.cache.count(), "cache invalidated once")
	indexed, failed := h.files.counts()
	assert.Equal(t, 1, indexed)
	assert.Zero(t, failed)
}

func TestRunSucceedsButReloadFails(t *testing.T) {
	// No artifacts are written, so the post-success reload cannot find a
	// complete generation. The run still terminates as completed with the
	// reload failure surfaced in the message.
	h := newHarness(t, `exit 0`)

	_, err := h.sup.Start()
	require.NoError(t, err)

	final := waitIdle(t, h.sup)
	assert.Equal(t, 100, final.Progress)
	assert.Contains(t, final.Message, "completed, but artifact reload failed")
	assert.EqualValues(t, 0, h.store.Generation())
}

func TestRunFails(t *testing.T) {
	h := newHarness(t, `
echo "creating chunks"
echo "ERROR: out of memory" >&2
echo "cleaning up"
exit 2`)

	_, err := h.sup.Start()
	require.NoError(t, err)

	final := waitIdle(t, h.sup)
	assert.Zero(t, final.Progress, "failure resets progress")
	assert.Equal(t, "ERROR: out of memory", final.Message)
	require.NotNil(t, final.ExitStatus)
	assert.Equal(t, 2, *final.ExitStatus)

	assert.Zero(t, h.cache.count(), "no invalidation on failure")
	indexed, failed := h.files.counts()
	assert.Zero(t, indexed)
	assert.Equal(t, 1, failed)
	assert.EqualValues(t, 0, h.store.Generation())
}

func TestRunFailsWithoutErrorLine(t *testing.T) {
	h := newHarness(t, `echo "working"; exit 1`)

	_, err := h.sup.Start()
	require.NoError(t, err)

	final := waitIdle(t, h.sup)
	assert.Equal(t, "failed", final.Message)
}

func TestStartRefusedWhileRunning(t *testing.T) {
	h := newHarness(t, `sleep 30`)

	_, err := h.sup.Start()
	require.NoError(t, err)

	st, err := h.sup.Start()
	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))
	assert.True(t, st.IsRunning, "conflict response carries the live status")

	require.NoError(t, h.sup.Shutdown(context.Background()))
}

func TestDirectoryLockExcludesOtherSupervisors(t *testing.T) {
	h := newHarness(t, `sleep 30`)

	// A second supervisor over the same output directory stands in for a
	// second backend process.
	cfg := &config.Config{
		RootDir:        h.outDir,
		OutputDir:      h.outDir,
		IndexerCommand: []string{"/bin/sh", "-c", "exit 0"},
		StopGrace:      2 * time.Second,
	}
	other, err := NewSupervisor(cfg, artifact.NewStore(h.outDir, zap.NewNop(), nil), nil, nil, zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = h.sup.Start()
	require.NoError(t, err)

	_, err = other.Start()
	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))

	require.NoError(t, h.sup.Shutdown(context.Background()))

	// The lock is released before the terminal status is published, so an
	// immediate retry must be accepted.
	_, err = other.Start()
	require.NoError(t, err)
	waitIdle(t, other)
}

func TestShutdownCancelsRun(t *testing.T) {
	h := newHarness(t, `sleep 30`)

	_, err := h.sup.Start()
	require.NoError(t, err)

	require.NoError(t, h.sup.Shutdown(context.Background()))

	final := h.sup.Status()
	assert.False(t, final.IsRunning)
	assert.Equal(t, "cancelled", final.Message)
	assert.Zero(t, final.Progress)

	_, failed := h.files.counts()
	assert.Equal(t, 1, failed)
}

func TestShutdownWithoutRunIsNoop(t *testing.T) {
	h := newHarness(t, `exit 0`)
	require.NoError(t, h.sup.Shutdown(context.Background()))
}

func TestStartFailsWhenCommandMissing(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		RootDir:        root,
		OutputDir:      filepath.Join(root, "output"),
		IndexerCommand: []string{filepath.Join(root, "no-such-indexer")},
		StopGrace:      time.Second,
	}
	sup, err := NewSupervisor(cfg, artifact.NewStore(cfg.OutputDir, zap.NewNop(), nil), nil, nil, zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = sup.Start()
	require.NoError(t, err, "launch failures surface through status, not Start")

	final := waitIdle(t, sup)
	assert.Contains(t, final.Message, "starting indexer")
	assert.Zero(t, final.Progress)
}

func TestConsumeLineMilestones(t *testing.T) {
	h := newHarness(t, `exit 0`)
	s := h.sup
	logger := zap.NewNop()

	s.mu.Lock()
	s.status.IsRunning = true
	s.recent = newLineRing(recentLineCapacity)
	s.mu.Unlock()

	s.consumeLine("loading documents", "stdout", logger)
	st := s.Status()
	assert.Equal(t, 10, st.Progress, "first output bumps to 10")
	assert.Equal(t, "indexing", st.Message)

	s.consumeLine("creating chunks", "stdout", logger)
	assert.Equal(t, 20, s.Status().Progress)

	s.consumeLine("entity extraction", "stdout", logger)
	assert.Equal(t, 40, s.Status().Progress)

	s.consumeLine("chunking leftovers", "stdout", logger)
	assert.Equal(t, 40, s.Status().Progress, "progress never moves backwards")

	s.consumeLine("generating embeddings", "stderr", logger)
	assert.Equal(t, 90, s.Status().Progress)

	s.consumeLine("community detection", "stdout", logger)
	assert.Equal(t, 90, s.Status().Progress)

	s.consumeLine("   ", "stdout", logger)
	assert.Equal(t, 90, s.Status().Progress, "blank lines are inert")

	s.consumeLine("ERROR: disk full", "stderr", logger)
	s.consumeLine("error: followup", "stderr", logger)
	s.mu.Lock()
	firstError := s.firstErrorLine
	s.mu.Unlock()
	assert.Equal(t, "ERROR: disk full", firstError, "first error line wins")
}

func TestLineRing(t *testing.T) {
	r := newLineRing(3)
	r.Add("a")
	r.Add("b")
	assert.Equal(t, []string{"a", "b"}, r.Snapshot())

	r.Add("c")
	r.Add("d")
	assert.Equal(t, []string{"b", "c", "d"}, r.Snapshot(), "oldest lines evicted first")
}
