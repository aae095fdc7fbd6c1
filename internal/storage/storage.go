package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bdougie/handscan/internal/models"
)

const defaultBatchSize = 10

var ErrClosed = errors.New("journal is closed")

// Journal keeps a record of every finished capture attempt
type Journal interface {
	// Add records one attempt. Implementations may buffer.
	Add(ctx context.Context, rec models.CaptureRecord) error

	// Flush ensures all pending records are saved
	Flush(ctx context.Context) error

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]models.CaptureRecord, error)

	Close() error
}

// FileJournal batches records in memory and appends them to a JSON file
type FileJournal struct {
	mu        sync.Mutex
	pending   []models.CaptureRecord
	path      string
	batchSize int
	closed    bool
	logger    *slog.Logger
}

func NewFileJournal(path string, batchSize int, logger *slog.Logger) *FileJournal {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileJournal{path: path, batchSize: batchSize, logger: logger}
}

// Add appends to the batch and writes the file once the batch is full
func (j *FileJournal) Add(_ context.Context, rec models.CaptureRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.pending = append(j.pending, rec)

	if len(j.pending) >= j.batchSize {
		if err := j.flush(); err != nil {
			j.logger.Error("Failed to flush journal", "path", j.path, "error", err)
			return err
		}
	}
	return nil
}

func (j *FileJournal) Flush(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flush()
}

func (j *FileJournal) Recent(_ context.Context, limit int) ([]models.CaptureRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.read()
	if err != nil {
		return nil, err
	}
	all = append(all, j.pending...)
	slices.Reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Close writes what is pending; later Adds fail with ErrClosed
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.flush()
}

func (j *FileJournal) read() ([]models.CaptureRecord, error) {
	var records []models.CaptureRecord
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal: %w", err)
	}
	return records, nil
}

func (j *FileJournal) flush() error {
	if len(j.pending) == 0 {
		return nil
	}

	existing, err := j.read()
	if err != nil {
		return err
	}
	all := append(existing, j.pending...)

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for journal: %w", err)
	}

	// write next to the target and rename so a crash never leaves half a file
	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".journal-*")
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace journal: %w", err)
	}

	j.logger.Debug("Journal flushed", "path", j.path, "records", len(j.pending))
	j.pending = nil
	return nil
}
