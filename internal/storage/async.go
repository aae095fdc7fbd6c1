package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/handscan/internal/models"
)

var ErrQueueFull = errors.New("journal queue is full, record dropped")

const writeTimeout = 10 * time.Second

// AsyncJournal hands records to a small worker pool so a slow database never
// holds up the scan flow.
type AsyncJournal struct {
	inner   Journal
	queue   chan models.CaptureRecord
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	onDrop  func()
	logger  *slog.Logger
	workers int
}

type AsyncOptions struct {
	Workers   int
	QueueSize int
	OnDrop    func()
	Logger    *slog.Logger
}

func NewAsyncJournal(inner Journal, opts AsyncOptions) *AsyncJournal {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &AsyncJournal{
		inner:   inner,
		queue:   make(chan models.CaptureRecord, opts.QueueSize),
		onDrop:  opts.OnDrop,
		logger:  opts.Logger,
		workers: opts.Workers,
	}
	a.startWorkers()
	return a
}

func (a *AsyncJournal) startWorkers() {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for rec := range a.queue {
				ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				if err := a.inner.Add(ctx, rec); err != nil {
					a.logger.Error("Failed to journal capture", "attempt_id", rec.AttemptID, "error", err)
				}
				cancel()
			}
		}()
	}
}

// Add queues the record and returns immediately. A full queue drops the
// record and returns ErrQueueFull.
func (a *AsyncJournal) Add(_ context.Context, rec models.CaptureRecord) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		if a.onDrop != nil {
			a.onDrop()
		}
		a.logger.Warn("Journal queue full", "attempt_id", rec.AttemptID)
		return ErrQueueFull
	}
}

// Flush flushes the wrapped journal. Records still queued are not waited for;
// Close drains them.
func (a *AsyncJournal) Flush(ctx context.Context) error {
	return a.inner.Flush(ctx)
}

func (a *AsyncJournal) Recent(ctx context.Context, limit int) ([]models.CaptureRecord, error) {
	return a.inner.Recent(ctx, limit)
}

// Close drains the queue, waits for the workers and closes the wrapped journal
func (a *AsyncJournal) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()

		a.wg.Wait()
		err = a.inner.Close()
	})
	return err
}
