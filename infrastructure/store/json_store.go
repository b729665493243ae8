// Package store persists review state as a JSON document on disk.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.FindingStore = (*JSONStore)(nil)

// Suffixes of the files kept next to the state document.
const (
	BackupSuffix    = ".bak"
	CorruptedSuffix = ".corrupted"
)

// JSONStore keeps ReviewState in a single JSON file. Saves are atomic and
// keep the previous document as a backup; loads fall back to the backup
// when the primary is missing or unreadable.
type JSONStore struct {
	path     string
	retry    retry.Config
	logger   *slog.Logger
	readFile func(string) ([]byte, error)
}

// NewJSONStore returns a store at path. Transient read errors are retried
// up to attempts times; zero uses three.
func NewJSONStore(path string, attempts int, logger *slog.Logger) *JSONStore {
	if attempts <= 0 {
		attempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStore{
		path: path,
		retry: retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
			// Missing and undecodable documents do not change between attempts.
			NonRetryableErrors: []error{fs.ErrNotExist, ports.ErrStateCorrupted},
		},
		logger:   logger,
		readFile: os.ReadFile,
	}
}

// Path returns the state document path.
func (s *JSONStore) Path() string { return s.path }

// Load implements ports.FindingStore. A missing document yields an empty
// state. A corrupt document is renamed aside and the backup is tried before
// starting empty.
func (s *JSONStore) Load(ctx context.Context) (*domain.ReviewState, error) {
	state, err := s.read(ctx, s.path)
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, ports.ErrStateCorrupted):
		aside := s.path + CorruptedSuffix
		if rerr := os.Rename(s.path, aside); rerr != nil {
			return nil, ports.NewStoreError(s.path, "quarantine", rerr)
		}
		s.logger.Warn("state file corrupted, moved aside", "path", s.path, "moved_to", aside, "error", err)
	default:
		return nil, ports.NewStoreError(s.path, "load", err)
	}

	backup := s.path + BackupSuffix
	state, err = s.read(ctx, backup)
	switch {
	case err == nil:
		s.logger.Info("state recovered from backup", "path", backup)
		return state, nil
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, ports.ErrStateCorrupted):
		s.logger.Warn("backup state corrupted, starting empty", "path", backup, "error", err)
	default:
		return nil, ports.NewStoreError(backup, "load", err)
	}
	return domain.NewReviewState(), nil
}

// read decodes one document. Missing and undecodable files are reported
// immediately; other I/O errors are retried.
func (s *JSONStore) read(ctx context.Context, path string) (*domain.ReviewState, error) {
	retryer := retry.New[*domain.ReviewState](s.retry)
	return retryer.Do(ctx, func(ctx context.Context) (*domain.ReviewState, error) {
		data, err := s.readFile(path)
		if err != nil {
			return nil, err
		}
		return decode(data)
	})
}

func decode(data []byte) (*domain.ReviewState, error) {
	var st domain.ReviewState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrStateCorrupted, err)
	}
	st.EnsureDefaults()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrStateCorrupted, err)
	}
	return &st, nil
}

// Save implements ports.FindingStore. The current document, if any, is
// copied to the backup before the new one is renamed into place.
func (s *JSONStore) Save(ctx context.Context, state *domain.ReviewState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state.EnsureDefaults()
	if err := state.Validate(); err != nil {
		return ports.NewStoreError(s.path, "save", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return ports.NewStoreError(s.path, "encode", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ports.NewStoreError(s.path, "mkdir", err)
	}

	if prev, err := os.ReadFile(s.path); err == nil {
		if err := writeAtomic(s.path+BackupSuffix, prev); err != nil {
			return ports.NewStoreError(s.path+BackupSuffix, "backup", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return ports.NewStoreError(s.path, "backup", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return ports.NewStoreError(s.path, "save", err)
	}
	s.logger.Debug("state saved", "path", s.path, "findings", len(state.Findings))
	return nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
