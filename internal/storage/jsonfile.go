package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"voicecard/internal/domain"
)

const lockRetryDelay = 25 * time.Millisecond

// JSONFile keeps the collection as one JSON array on disk.
type JSONFile struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
}

func NewJSONFile(baseDir string, logger *slog.Logger) (*JSONFile, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	path := filepath.Join(baseDir, "pages.json")
	return &JSONFile{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (j *JSONFile) Path() string {
	return j.path
}

// Lock takes the cross-process file lock, polling until ctx is done.
func (j *JSONFile) Lock(ctx context.Context) (func(), error) {
	ok, err := j.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: lock pages file: %v", domain.ErrStorageUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: pages file is locked", domain.ErrStorageUnavailable)
	}
	return func() {
		if err := j.lock.Unlock(); err != nil {
			j.logger.Warn("unlock pages file", "error", err)
		}
	}, nil
}

func (j *JSONFile) Load(ctx context.Context) ([]domain.AudioPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.AudioPage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open pages file: %v", domain.ErrStorageUnavailable, err)
	}
	defer file.Close()

	var pages []domain.AudioPage
	if err := json.NewDecoder(file).Decode(&pages); err != nil {
		if errors.Is(err, io.EOF) {
			return []domain.AudioPage{}, nil
		}
		if !holdsWriteLock(ctx) {
			j.logger.Warn("pages file is malformed, reading as empty", "path", j.path, "error", err)
			return []domain.AudioPage{}, nil
		}
		j.quarantine(err)
		return []domain.AudioPage{}, nil
	}
	if pages == nil {
		pages = []domain.AudioPage{}
	}
	return pages, nil
}

// Save writes to a temp file in the same directory and renames it over the
// previous content, so a failed write never truncates existing data.
func (j *JSONFile) Save(ctx context.Context, pages []domain.AudioPage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pages == nil {
		pages = []domain.AudioPage{}
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), "pages-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp pages: %v", domain.ErrStorageUnavailable, err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(pages); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: encode pages: %v", domain.ErrStorageUnavailable, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: sync temp pages: %v", domain.ErrStorageUnavailable, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: close temp pages: %v", domain.ErrStorageUnavailable, err)
	}

	if err := os.Rename(tmp.Name(), j.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: replace pages file: %v", domain.ErrStorageUnavailable, err)
	}

	return nil
}

// quarantine moves an unreadable pages file aside so the next save starts
// from an empty collection without destroying the evidence. Only called
// under the write lock, so a file saved by another writer is never moved.
func (j *JSONFile) quarantine(cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", j.path, j.now().Unix())
	if err := os.Rename(j.path, aside); err != nil {
		j.logger.Error("pages file is malformed and could not be moved aside", "path", j.path, "error", cause, "rename_error", err)
		return
	}
	j.logger.Warn("pages file is malformed, starting from an empty collection", "path", j.path, "moved_to", aside, "error", cause)
}
