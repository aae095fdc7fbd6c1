// Package events forwards capture snapshots to observers outside the process,
// such as a kiosk display.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdougie/handscan/internal/capture"
)

const (
	channelPrefix = "handscan:phase:"
	lastKeyPrefix = "handscan:last:"
	lastKeyTTL    = 10 * time.Minute
)

// Publisher sends one snapshot somewhere
type Publisher interface {
	Publish(ctx context.Context, snap capture.Snapshot) error
	Close() error
}

// Channel is the pub/sub channel for a scan
func Channel(scanID string) string {
	return channelPrefix + scanID
}

// RedisPublisher publishes snapshots on a per-scan channel and keeps the
// latest one under a key for displays that join late.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to addr. Returns an error when the ping fails.
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, snap capture.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, Channel(snap.ScanID), payload)
	pipe.Set(ctx, lastKeyPrefix+snap.ScanID, payload, lastKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes snapshots to the log; used when Redis is not configured
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, snap capture.Snapshot) error {
	p.Logger.Debug("Capture snapshot", "scan_id", snap.ScanID, "phase", snap.Phase, "instruction", snap.Instruction)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Relay decouples the capture controller from a publisher. Snapshots are
// published in order from one goroutine; when the buffer is full new
// snapshots are dropped rather than stalling the controller.
type Relay struct {
	pub     Publisher
	queue   chan capture.Snapshot
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
}

func NewRelay(pub Publisher, buffer int, logger *slog.Logger) *Relay {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		pub:     pub,
		queue:   make(chan capture.Snapshot, buffer),
		done:    make(chan struct{}),
		timeout: 2 * time.Second,
		logger:  logger,
	}
	go r.run()
	return r
}

// Observe matches capture.Deps.Observer
func (r *Relay) Observe(snap capture.Snapshot) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- snap:
	default:
		r.logger.Warn("Dropping capture snapshot", "scan_id", snap.ScanID, "phase", snap.Phase)
	}
}

func (r *Relay) run() {
	defer close(r.done)
	for snap := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.pub.Publish(ctx, snap); err != nil {
			r.logger.Warn("Failed to publish snapshot", "scan_id", snap.ScanID, "error", err)
		}
		cancel()
	}
}

// Close publishes what is queued, then closes the publisher
func (r *Relay) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
		err = r.pub.Close()
	})
	return err
}
