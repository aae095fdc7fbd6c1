package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/handscan/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(id string) models.CaptureRecord {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return models.CaptureRecord{
		AttemptID: id,
		ScanID:    "scan-1",
		Outcome:   "succeeded",
		StartedAt: now,
		EndedAt:   now.Add(5 * time.Second),
	}
}

func TestFileJournalBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.json")
	j := NewFileJournal(path, 2, quietLogger())
	ctx := context.Background()

	require.NoError(t, j.Add(ctx, record("a")))
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "first record stays in memory")

	require.NoError(t, j.Add(ctx, record("b")))
	_, err = os.Stat(path)
	require.NoError(t, err, "full batch is written")

	require.NoError(t, j.Add(ctx, record("c")))
	recent, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].AttemptID)
	assert.Equal(t, "a", recent[2].AttemptID)

	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Add(ctx, record("d")), ErrClosed)

	reopened := NewFileJournal(path, 2, quietLogger())
	recent, err = reopened.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].AttemptID)
	assert.Equal(t, "b", recent[1].AttemptID)
}

func TestFileJournalKeepsClassification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	j := NewFileJournal(path, 1, quietLogger())
	rec := record("a")
	rec.Classification = &models.ScanResult{ID: "r1", ClassifiedAge: 33, ConfidenceAge: 0.7}
	rec.Explanation = "The model is fairly sure."
	require.NoError(t, j.Add(context.Background(), rec))

	got, err := NewFileJournal(path, 1, quietLogger()).Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Classification)
	assert.Equal(t, 33, got[0].Classification.ClassifiedAge)
	assert.Equal(t, rec.Explanation, got[0].Explanation)
}

func TestFileJournalRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	j := NewFileJournal(path, 1, quietLogger())
	assert.Error(t, j.Add(context.Background(), record("a")))
	_, err := j.Recent(context.Background(), 1)
	assert.Error(t, err)
}

// blockingJournal holds every Add until released
type blockingJournal struct {
	mu      sync.Mutex
	added   []string
	release chan struct{}
	closed  bool
}

func (b *blockingJournal) Add(_ context.Context, rec models.CaptureRecord) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, rec.AttemptID)
	return nil
}

func (b *blockingJournal) Flush(context.Context) error { return nil }

func (b *blockingJournal) Recent(context.Context, int) ([]models.CaptureRecord, error) {
	return nil, nil
}

func (b *blockingJournal) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func TestAsyncJournalDropsWhenFull(t *testing.T) {
	inner := &blockingJournal{release: make(chan struct{})}
	var drops int
	a := NewAsyncJournal(inner, AsyncOptions{Workers: 1, QueueSize: 1, OnDrop: func() { drops++ }, Logger: quietLogger()})
	ctx := context.Background()

	// one record in the worker, one in the queue
	require.NoError(t, a.Add(ctx, record("a")))
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Add(ctx, record("b")))

	assert.ErrorIs(t, a.Add(ctx, record("c")), ErrQueueFull)
	assert.Equal(t, 1, drops)

	close(inner.release)
	require.NoError(t, a.Close())
	assert.ElementsMatch(t, []string{"a", "b"}, inner.added)
	assert.True(t, inner.closed)

	assert.ErrorIs(t, a.Add(ctx, record("d")), ErrClosed)
	assert.NoError(t, a.Close())
}

func TestAsyncJournalWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	a := NewAsyncJournal(NewFileJournal(path, 10, quietLogger()), AsyncOptions{Logger: quietLogger()})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.Add(context.Background(), record(id)))
	}
	require.NoError(t, a.Close())

	got, err := NewFileJournal(path, 10, quietLogger()).Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestResultVector(t *testing.T) {
	v := ResultVector(models.ScanResult{
		MinAge: 20, MaxAge: 30, ClassifiedAge: 25, ClassifiedGender: 1,
		ConfidenceAge: 0.5, ConfidenceGender: 0.9,
	})
	require.Len(t, v, resultDims)
	assert.InDelta(t, 0.25, v[0], 1e-6)
	assert.InDelta(t, 0.20, v[1], 1e-6)
	assert.InDelta(t, 0.30, v[2], 1e-6)
	assert.InDelta(t, 1.0, v[3], 1e-6)
	assert.InDelta(t, 0.9, v[5], 1e-6)
}
