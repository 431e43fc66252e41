// Package index supervises the single indexing subprocess: lifecycle,
// progress extraction from its output, cross-process exclusivity and the
// post-success artifact reload.
package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/config"
	"graphrag-backend/internal/domain"
	appErrors "graphrag-backend/pkg/errors"
	"graphrag-backend/pkg/observability"
)

// lockFileName guards the output directory across processes. A second
// backend pointed at the same directory must refuse to start a job.
const lockFileName = ".index.lock"

const recentLineCapacity = 64

// CacheInvalidator is what the supervisor needs from the analytics cache.
type CacheInvalidator interface {
	Invalidate()
}

// FileOutcomes receives run outcomes for upload status bookkeeping.
type FileOutcomes interface {
	MarkIndexed()
	MarkError()
}

// Supervisor owns the indexing job singleton. All status mutation happens
// under one mutex; readers get copies.
type Supervisor struct {
	rootDir   string
	outputDir string
	command   []string
	stopGrace time.Duration

	store    *artifact.Store
	cache    CacheInvalidator
	settings *config.SettingsSource
	logger   *zap.Logger
	metrics  *observability.Collector

	mu             sync.Mutex
	status         domain.JobStatus
	cancelRun      context.CancelFunc
	done           chan struct{}
	sawOutput      bool
	firstErrorLine string
	recent         *lineRing
	files          FileOutcomes
}

// NewSupervisor creates the supervisor. The output directory is created
// eagerly so the lock file has somewhere to live.
func NewSupervisor(
	cfg *config.Config,
	store *artifact.Store,
	cache CacheInvalidator,
	settings *config.SettingsSource,
	logger *zap.Logger,
	metrics *observability.Collector,
) (*Supervisor, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Supervisor{
		rootDir:   cfg.RootDir,
		outputDir: cfg.OutputDir,
		command:   cfg.IndexerCommand,
		stopGrace: cfg.StopGrace,
		store:     store,
		cache:     cache,
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
		status:    domain.JobStatus{Message: "idle"},
	}, nil
}

// SetFileOutcomes registers the upload tracker. Called once during wiring;
// the supervisor and the upload service reference each other through
// interfaces, so one side is attached after construction.
func (s *Supervisor) SetFileOutcomes(files FileOutcomes) {
	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
}

// Status returns a consistent copy of the current job state.
func (s *Supervisor) Status() domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start launches an indexing run. It returns a Conflict error while a run
// is active in this process or when another process holds the directory
// lock; the returned status reflects the accepted run otherwise.
func (s *Supervisor) Start() (domain.JobStatus, error) {
	s.mu.Lock()

	if s.status.IsRunning {
		st := s.status
		s.mu.Unlock()
		return st, appErrors.NewConflict("indexing already in progress")
	}

	lock := flock.New(filepath.Join(s.outputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		s.mu.Unlock()
		return domain.JobStatus{}, appErrors.NewInternal("acquiring index lock", err)
	}
	if !locked {
		st := s.status
		s.mu.Unlock()
		return st, appErrors.NewConflict("another process is indexing this output directory")
	}

	runID := uuid.New().String()
	now := time.Now()
	s.status = domain.JobStatus{
		IsRunning: true,
		Progress:  0,
		Message:   "starting",
		StartedAt: &now,
	}
	s.sawOutput = false
	s.firstErrorLine = ""
	s.recent = newLineRing(recentLineCapacity)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel
	done := make(chan struct{})
	s.done = done

	st := s.status
	s.mu.Unlock()

	go s.run(runCtx, cancel, lock, runID, done)
	return st, nil
}

// Shutdown cancels a running job and waits for its goroutine to finish.
// The subprocess receives SIGTERM and, after the grace window, SIGKILL.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := s.status.IsRunning
	cancel := s.cancelRun
	done := s.done
	s.mu.Unlock()

	if !running || cancel == nil {
		return nil
	}

	s.logger.Info("Cancelling indexing run for shutdown")
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one subprocess from launch to terminal status. The directory
// lock is released before the terminal status is published, so a caller
// that observes is_running=false can start the next run immediately.
func (s *Supervisor) run(ctx context.Context, cancel context.CancelFunc, lock *flock.Flock, runID string, done chan struct{}) {
	var unlockOnce sync.Once
	unlock := func() {
		unlockOnce.Do(func() {
			if err := lock.Unlock(); err != nil {
				s.logger.Warn("Releasing index lock failed", zap.Error(err))
			}
		})
	}
	defer close(done)
	defer cancel()
	defer unlock()

	logger := s.logger.With(zap.String("run_id", runID))
	started := time.Now()

	argv := make([]string, 0, len(s.command)+3)
	argv = append(argv, s.command...)
	argv = append(argv, "--root", s.rootDir, "--verbose")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.stopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		unlock()
		s.finishFailure(-1, fmt.Sprintf("starting indexer: %v", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		unlock()
		s.finishFailure(-1, fmt.Sprintf("starting indexer: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		unlock()
		s.finishFailure(-1, fmt.Sprintf("starting indexer: %v", err))
		return
	}

	logger.Info("Indexer started",
		zap.Strings("command", argv),
		zap.Int("pid", cmd.Process.Pid),
	)

	var pumps errgroup.Group
	pumps.Go(func() error { return s.pump(stdout, "stdout", logger) })
	pumps.Go(func() error { return s.pump(stderr, "stderr", logger) })
	if err := pumps.Wait(); err != nil {
		logger.Warn("Indexer output pump ended early", zap.Error(err))
	}

	waitErr := cmd.Wait()
	duration := time.Since(started)

	if waitErr == nil {
		unlock()
		s.finishSuccess(logger, duration)
		return
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	if ctx.Err() != nil {
		logger.Info("Indexer cancelled",
			zap.Duration("duration", duration),
			zap.Int("exit_code", exitCode),
		)
		unlock()
		s.finishCancelled(exitCode)
		if s.metrics != nil {
			s.metrics.ObserveIndexingRun("cancelled", duration)
		}
		return
	}

	s.mu.Lock()
	message := s.firstErrorLine
	recent := s.recent.Snapshot()
	s.mu.Unlock()
	if message == "" {
		message = "failed"
	}

	logger.Error("Indexer failed",
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", duration),
		zap.Strings("recent_output", recent),
	)
	unlock()
	s.finishFailure(exitCode, message)
	if s.metrics != nil {
		s.metrics.ObserveIndexingRun("failed", duration)
	}
}

// pump scans one output stream line by line.
func (s *Supervisor) pump(r io.Reader, stream string, logger *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.consumeLine(scanner.Text(), stream, logger)
	}
	return scanner.Err()
}

// consumeLine updates progress from one subprocess output line. Progress
// only ever moves forward within a run and never reaches 100 from output
// alone.
func (s *Supervisor) consumeLine(line, stream string, logger *zap.Logger) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	logger.Debug("Indexer output",
		zap.String("stream", stream),
		zap.String("line", trimmed),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.IsRunning {
		return
	}

	s.recent.Add(trimmed)
	if s.firstErrorLine == "" && containsError(trimmed) {
		s.firstErrorLine = trimmed
	}

	if !s.sawOutput {
		s.sawOutput = true
		s.status.Message = "indexing"
		if s.status.Progress < progressFirstOutput {
			s.status.Progress = progressFirstOutput
		}
	}

	if p := progressForLine(trimmed); p > s.status.Progress && p <= progressCeiling {
		s.status.Progress = p
	}
}

// finishSuccess runs the post-success sequence: settings re-read, cache
// invalidation, artifact reload, file status flip, and only then the
// terminal status swap, so a client that sees is_indexing=false is
// guaranteed to read the new generation.
func (s *Supervisor) finishSuccess(logger *zap.Logger, duration time.Duration) {
	if s.settings != nil {
		if err := s.settings.Reload(); err != nil {
			logger.Warn("Settings re-read after indexing failed", zap.Error(err))
		}
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}

	message := "completed"
	if err := s.store.Reload(); err != nil {
		logger.Error("Artifact reload after successful run failed", zap.Error(err))
		message = fmt.Sprintf("completed, but artifact reload failed: %s", appErrors.DetailOf(err))
	}

	s.notifyFiles(func(f FileOutcomes) { f.MarkIndexed() })

	now := time.Now()
	exit := 0
	s.mu.Lock()
	s.status.IsRunning = false
	s.status.Progress = progressComplete
	s.status.Message = message
	s.status.FinishedAt = &now
	s.status.ExitStatus = &exit
	s.mu.Unlock()

	logger.Info("Indexing run succeeded",
		zap.Duration("duration", duration),
		zap.Int64("generation", s.store.Generation()),
	)
	if s.metrics != nil {
		s.metrics.ObserveIndexingRun("succeeded", duration)
	}
}

// finishFailure records a failed run.
func (s *Supervisor) finishFailure(exitCode int, message string) {
	s.notifyFiles(func(f FileOutcomes) { f.MarkError() })

	now := time.Now()
	s.mu.Lock()
	s.status.IsRunning = false
	s.status.Progress = 0
	s.status.Message = message
	s.status.FinishedAt = &now
	s.status.ExitStatus = &exitCode
	s.mu.Unlock()
}

// finishCancelled records a run stopped by shutdown.
func (s *Supervisor) finishCancelled(exitCode int) {
	s.notifyFiles(func(f FileOutcomes) { f.MarkError() })

	now := time.Now()
	s.mu.Lock()
	s.status.IsRunning = false
	s.status.Progress = 0
	s.status.Message = "cancelled"
	s.status.FinishedAt = &now
	s.status.ExitStatus = &exitCode
	s.mu.Unlock()
}

func (s *Supervisor) notifyFiles(fn func(FileOutcomes)) {
	s.mu.Lock()
	files := s.files
	s.mu.Unlock()
	if files != nil {
		fn(files)
	}
}

// lineRing keeps the last N output lines for failure diagnostics.
type lineRing struct {
	lines []string
	next  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) Add(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the retained lines oldest first.
func (r *lineRing) Snapshot() []string {
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}
