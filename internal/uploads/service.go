// Package uploads owns the input directory: admission control for new
// corpus files, listing with indexing status, and deletion.
package uploads

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"graphrag-backend/internal/config"
	"graphrag-backend/internal/domain"
	appErrors "graphrag-backend/pkg/errors"
	"graphrag-backend/pkg/observability"
)

// MaxUploadBytes caps a single uploaded file at 10 MiB.
const MaxUploadBytes int64 = 10 << 20

var allowedExtensions = map[string]bool{
	".txt": true,
	".csv": true,
}

// GenerationSource reports the currently published artifact generation.
// Zero means no artifacts exist yet.
type GenerationSource interface {
	Generation() int64
}

// Starter is what the upload service needs from the index supervisor when
// uploads are configured to kick off indexing.
type Starter interface {
	Start() (domain.JobStatus, error)
}

// Service manages uploaded corpus files. Listings are rebuilt from a
// directory scan so the process owns no durable bookkeeping; per-file
// indexing status lives in memory and resets on restart.
type Service struct {
	inputDir    string
	generations GenerationSource
	logger      *zap.Logger
	metrics     *observability.Collector

	mu       sync.Mutex
	statuses map[string]domain.FileStatus
	starter  Starter
}

// NewService creates the upload service. The input directory is created
// eagerly so uploads and the indexer have somewhere to work.
func NewService(cfg *config.Config, generations GenerationSource, logger *zap.Logger, metrics *observability.Collector) (*Service, error) {
	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating input directory: %w", err)
	}

	return &Service{
		inputDir:    cfg.InputDir,
		generations: generations,
		logger:      logger,
		metrics:     metrics,
		statuses:    make(map[string]domain.FileStatus),
	}, nil
}

// SetStarter makes successful uploads request an indexing run. Attached
// during wiring only when the auto-index feature is on.
func (s *Service) SetStarter(starter Starter) {
	s.mu.Lock()
	s.starter = starter
	s.mu.Unlock()
}

// Upload validates and persists one file. Rejections carry a Validation
// kind and leave no trace on disk; a name collision stores the file under
// `name_<unix_timestamp>.ext` instead of overwriting.
func (s *Service) Upload(filename string, content io.Reader, size int64) (domain.UploadedFile, error) {
	if err := validateName(filename); err != nil {
		s.countUpload("rejected")
		return domain.UploadedFile{}, err
	}

	ext := filepath.Ext(filename)
	if !allowedExtensions[strings.ToLower(ext)] {
		s.countUpload("rejected")
		return domain.UploadedFile{}, appErrors.NewValidation("unsupported file type, allowed: .txt, .csv")
	}

	if size <= 0 {
		s.countUpload("rejected")
		return domain.UploadedFile{}, appErrors.NewValidation("file is empty")
	}
	if size > MaxUploadBytes {
		s.countUpload("rejected")
		return domain.UploadedFile{}, appErrors.NewValidation(fmt.Sprintf("file exceeds the %d MiB limit", MaxUploadBytes>>20))
	}

	stored := filename
	target := filepath.Join(s.inputDir, stored)
	if _, err := os.Stat(target); err == nil {
		stem := strings.TrimSuffix(filename, ext)
		stored = fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext)
		target = filepath.Join(s.inputDir, stored)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		s.countUpload("failed")
		return domain.UploadedFile{}, appErrors.NewInternal("storing uploaded file", err)
	}

	written, err := io.Copy(f, content)
	if err != nil {
		f.Close()
		os.Remove(target)
		s.countUpload("failed")
		return domain.UploadedFile{}, appErrors.NewInternal("writing uploaded file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		s.countUpload("failed")
		return domain.UploadedFile{}, appErrors.NewInternal("writing uploaded file", err)
	}

	s.mu.Lock()
	s.statuses[stored] = domain.FileStatusPending
	starter := s.starter
	s.mu.Unlock()

	s.countUpload("accepted")
	s.logger.Info("File uploaded",
		zap.String("name", stored),
		zap.Int64("size", written),
	)

	if starter != nil {
		go s.requestIndexing(starter)
	}

	return domain.UploadedFile{
		ID:         fileID(stored),
		Name:       stored,
		Size:       written,
		UploadDate: time.Now(),
		Status:     domain.FileStatusPending,
	}, nil
}

// List scans the input directory and joins the in-memory status map.
// Files predating this process count as indexed once any generation
// exists, pending otherwise.
func (s *Service) List() ([]domain.UploadedFile, error) {
	entries, err := os.ReadDir(s.inputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.UploadedFile{}, nil
		}
		return nil, appErrors.NewInternal("reading input directory", err)
	}

	fallback := domain.FileStatusPending
	if s.generations != nil && s.generations.Generation() > 0 {
		fallback = domain.FileStatusIndexed
	}

	s.mu.Lock()
	statuses := make(map[string]domain.FileStatus, len(s.statuses))
	for name, status := range s.statuses {
		statuses[name] = status
	}
	s.mu.Unlock()

	files := make([]domain.UploadedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		status, ok := statuses[name]
		if !ok {
			status = fallback
		}

		files = append(files, domain.UploadedFile{
			ID:         fileID(name),
			Name:       name,
			Size:       info.Size(),
			UploadDate: info.ModTime(),
			Status:     status,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadDate.Equal(files[j].UploadDate) {
			return files[i].UploadDate.After(files[j].UploadDate)
		}
		return files[i].Name < files[j].Name
	})

	return files, nil
}

// Delete removes the file with the given id from the input directory.
// Existing artifacts are not rolled back and no re-index is requested.
func (s *Service) Delete(id string) error {
	entries, err := os.ReadDir(s.inputDir)
	if err != nil {
		return appErrors.NewInternal("reading input directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if fileID(name) != id {
			continue
		}

		if err := os.Remove(filepath.Join(s.inputDir, name)); err != nil {
			return appErrors.NewInternal("deleting file", err)
		}

		s.mu.Lock()
		delete(s.statuses, name)
		s.mu.Unlock()

		s.logger.Info("File deleted", zap.String("name", name))
		return nil
	}

	return appErrors.NewNotFound("file not found")
}

// MarkIndexed flips every tracked file to indexed. A successful run covers
// the whole input directory.
func (s *Service) MarkIndexed() {
	s.mu.Lock()
	for name := range s.statuses {
		s.statuses[name] = domain.FileStatusIndexed
	}
	s.mu.Unlock()
}

// MarkError flips files still waiting on a run to error. Files already
// indexed by an earlier generation keep their status.
func (s *Service) MarkError() {
	s.mu.Lock()
	for name, status := range s.statuses {
		if status == domain.FileStatusPending {
			s.statuses[name] = domain.FileStatusError
		}
	}
	s.mu.Unlock()
}

func (s *Service) requestIndexing(starter Starter) {
	if _, err := starter.Start(); err != nil {
		if appErrors.IsConflict(err) {
			return
		}
		s.logger.Warn("Indexing start after upload failed", zap.Error(err))
	}
}

func (s *Service) countUpload(outcome string) {
	if s.metrics != nil {
		s.metrics.Uploads.WithLabelValues(outcome).Inc()
	}
}

func validateName(name string) error {
	if name == "" {
		return appErrors.NewValidation("filename cannot be empty")
	}
	if name == "." || name == ".." {
		return appErrors.NewValidation("invalid filename")
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return appErrors.NewValidation("filename cannot contain path separators")
	}
	return nil
}

// fileID derives a stable identifier from the stored name so listings
// rebuilt from a directory scan keep their ids across restarts.
func fileID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:12]
}
