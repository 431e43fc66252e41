package uploads

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphrag-backend/internal/config"
	"graphrag-backend/internal/domain"
	appErrors "graphrag-backend/pkg/errors"
)

type stubGenerations struct{ gen int64 }

func (s stubGenerations) Generation() int64 { return s.gen }

type stubStarter struct {
	mu    sync.Mutex
	calls int
	err   error
	ch    chan struct{}
}

func (s *stubStarter) Start() (domain.JobStatus, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.ch != nil {
		s.ch <- struct{}{}
	}
	return domain.JobStatus{}, s.err
}

func newTestService(t *testing.T, gen int64) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(&config.Config{InputDir: dir}, stubGenerations{gen: gen}, zap.NewNop(), nil)
	require.NoError(t, err)
	return svc, dir
}

func TestUpload(t *testing.T) {
	t.Run("stores the file and reports it pending", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		file, err := svc.Upload("notes.txt", strings.NewReader("hello graph"), 11)
		require.NoError(t, err)

		assert.Equal(t, "notes.txt", file.Name)
		assert.Equal(t, int64(11), file.Size)
		assert.Equal(t, domain.FileStatusPending, file.Status)
		assert.NotEmpty(t, file.ID)

		data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello graph", string(data))
	})

	t.Run("rejects bad filenames without persisting anything", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		for _, name := range []string{"", ".", "..", "a/b.txt", `a\b.txt`, "nul\x00.txt"} {
			_, err := svc.Upload(name, strings.NewReader("x"), 1)
			assert.True(t, appErrors.IsValidation(err), "name %q should be rejected", name)
		}

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("rejects disallowed extensions", func(t *testing.T) {
		svc, _ := newTestService(t, 0)

		for _, name := range []string{"malware.exe", "noext", "archive.tgz", "data.parquet"} {
			_, err := svc.Upload(name, strings.NewReader("x"), 1)
			assert.True(t, appErrors.IsValidation(err), "name %q should be rejected", name)
		}
	})

	t.Run("accepts extensions case-insensitively", func(t *testing.T) {
		svc, _ := newTestService(t, 0)

		file, err := svc.Upload("REPORT.TXT", strings.NewReader("x"), 1)
		require.NoError(t, err)
		assert.Equal(t, "REPORT.TXT", file.Name)
	})

	t.Run("rejects empty and oversized payloads", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		_, err := svc.Upload("empty.txt", strings.NewReader(""), 0)
		assert.True(t, appErrors.IsValidation(err))

		_, err = svc.Upload("huge.txt", strings.NewReader("x"), MaxUploadBytes+1)
		assert.True(t, appErrors.IsValidation(err))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("renames on collision instead of overwriting", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		first, err := svc.Upload("notes.txt", strings.NewReader("one"), 3)
		require.NoError(t, err)

		second, err := svc.Upload("notes.txt", strings.NewReader("two"), 3)
		require.NoError(t, err)

		assert.Equal(t, "notes.txt", first.Name)
		assert.Regexp(t, regexp.MustCompile(`^notes_\d+\.txt$`), second.Name)

		data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
		require.NoError(t, err)
		assert.Equal(t, "one", string(data))

		data, err = os.ReadFile(filepath.Join(dir, second.Name))
		require.NoError(t, err)
		assert.Equal(t, "two", string(data))
	})
}

func TestList(t *testing.T) {
	t.Run("joins in-memory statuses with run outcomes", func(t *testing.T) {
		svc, _ := newTestService(t, 0)

		_, err := svc.Upload("a.txt", strings.NewReader("a"), 1)
		require.NoError(t, err)

		files, err := svc.List()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, domain.FileStatusPending, files[0].Status)

		svc.MarkIndexed()

		files, err = svc.List()
		require.NoError(t, err)
		assert.Equal(t, domain.FileStatusIndexed, files[0].Status)

		_, err = svc.Upload("b.txt", strings.NewReader("b"), 1)
		require.NoError(t, err)

		svc.MarkError()

		byName := map[string]domain.FileStatus{}
		files, err = svc.List()
		require.NoError(t, err)
		for _, f := range files {
			byName[f.Name] = f.Status
		}
		assert.Equal(t, domain.FileStatusIndexed, byName["a.txt"], "already indexed files keep their status")
		assert.Equal(t, domain.FileStatusError, byName["b.txt"], "pending files flip to error")
	})

	t.Run("defaults untracked files by generation", func(t *testing.T) {
		withoutGen, dir := newTestService(t, 0)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0o644))

		files, err := withoutGen.List()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, domain.FileStatusPending, files[0].Status)

		withGen, dir := newTestService(t, 3)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0o644))

		files, err = withGen.List()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, domain.FileStatusIndexed, files[0].Status)
	})

	t.Run("orders by upload date descending then name", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		now := time.Now()
		write := func(name string, mtime time.Time) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
			require.NoError(t, os.Chtimes(path, mtime, mtime))
		}
		write("old.txt", now.Add(-2*time.Hour))
		write("newer.txt", now.Add(-time.Hour))
		write("beta.txt", now.Add(-3*time.Hour))
		write("alpha.txt", now.Add(-3*time.Hour))

		files, err := svc.List()
		require.NoError(t, err)
		require.Len(t, files, 4)

		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name
		}
		assert.Equal(t, []string{"newer.txt", "old.txt", "alpha.txt", "beta.txt"}, names)
	})

	t.Run("skips directories and foreign extensions", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte("{}"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.csv"), []byte("a,b"), 0o644))

		files, err := svc.List()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "keep.csv", files[0].Name)
	})
}

func TestDelete(t *testing.T) {
	t.Run("removes the file by id", func(t *testing.T) {
		svc, dir := newTestService(t, 0)

		file, err := svc.Upload("gone.txt", strings.NewReader("x"), 1)
		require.NoError(t, err)

		require.NoError(t, svc.Delete(file.ID))

		_, err = os.Stat(filepath.Join(dir, "gone.txt"))
		assert.True(t, os.IsNotExist(err))

		files, err := svc.List()
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("unknown id yields not found", func(t *testing.T) {
		svc, _ := newTestService(t, 0)

		err := svc.Delete("no-such-id")
		assert.True(t, appErrors.IsNotFound(err))
	})
}

func TestAutoIndex(t *testing.T) {
	t.Run("requests indexing after a successful upload", func(t *testing.T) {
		svc, _ := newTestService(t, 0)
		starter := &stubStarter{ch: make(chan struct{}, 4)}
		svc.SetStarter(starter)

		_, err := svc.Upload("notes.txt", strings.NewReader("x"), 1)
		require.NoError(t, err)

		select {
		case <-starter.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("indexing start was never requested")
		}
	})

	t.Run("ignores conflict from an already running job", func(t *testing.T) {
		svc, _ := newTestService(t, 0)
		starter := &stubStarter{
			ch:  make(chan struct{}, 4),
			err: appErrors.NewConflict("indexing already in progress"),
		}
		svc.SetStarter(starter)

		_, err := svc.Upload("notes.txt", strings.NewReader("x"), 1)
		require.NoError(t, err)

		select {
		case <-starter.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("indexing start was never requested")
		}
	})

	t.Run("does not request indexing when no starter is attached", func(t *testing.T) {
		svc, _ := newTestService(t, 0)

		_, err := svc.Upload("notes.txt", strings.NewReader("x"), 1)
		require.NoError(t, err)
	})
}
