package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bdougie/handscan/internal/camera"
	"github.com/bdougie/handscan/internal/models"
	"github.com/bdougie/handscan/internal/nav"
	"github.com/bdougie/handscan/internal/sampler"
	"github.com/bdougie/handscan/internal/transport"
)

const DefaultSuccessDelay = time.Second

var (
	ErrMissingScanID   = errors.New("missing scan id: restart the scan")
	ErrAlreadyCaptured = errors.New("an image was already captured for this scan")
	ErrDeviceAccess    = errors.New("camera access failed")
	ErrTransport       = errors.New("analyzer connection failed")
	ErrExited          = errors.New("capture exited")
	ErrAlreadyRunning  = errors.New("capture controller already ran")
)

// Store is the part of the session store the capture step uses
type Store interface {
	ScanID() string
	CapturedImage() string
	ImageWriter
}

// Connection is an open analyzer session
type Connection interface {
	Send(frame []byte) bool
	OnMessage(h transport.Handler) error
	Close() error
}

// Connector opens the analyzer connection for a scan
type Connector func(ctx context.Context, scanID string) (Connection, error)

// Metrics receives capture counters. All methods must be cheap.
type Metrics interface {
	FrameSent()
	FrameDropped()
	PhaseChanged(kind string)
	CaptureFinished(outcome string)
}

// Snapshot is what a display needs to render the capture page
type Snapshot struct {
	ScanID      string    `json:"scan_id"`
	Phase       string    `json:"phase"`
	Seconds     *int      `json:"seconds_remaining,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Instruction string    `json:"instruction"`
	Terminal    bool      `json:"terminal"`
	At          time.Time `json:"at"`
}

type Deps struct {
	Store     Store
	Camera    camera.Device
	Connect   Connector
	Navigator nav.Navigator
	Metrics   Metrics
	// Observer is called after every handled message, in order.
	Observer func(Snapshot)
	Logger   *slog.Logger
}

type Options struct {
	SampleInterval time.Duration
	MaxFrameWidth  int
	JPEGQuality    int
	SuccessDelay   time.Duration
	// PhaseTimeout fails the capture when the analyzer sends nothing for this
	// long. Zero waits forever.
	PhaseTimeout time.Duration
}

// Controller owns one capture attempt: it acquires the camera and the analyzer
// connection together and releases both exactly once, whatever ends the attempt.
type Controller struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	machine     *Machine
	scanID      string
	stream      camera.Stream
	conn        Connection
	stopSampler context.CancelFunc
	lastMessage time.Time
	released    bool

	started      atomic.Bool
	framesSent   atomic.Int64
	exit         chan struct{}
	exitOnce     sync.Once
	terminal     chan struct{}
	terminalOnce sync.Once
	releaseOnce  sync.Once
}

func NewController(deps Deps, opts Options) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if opts.SuccessDelay <= 0 {
		opts.SuccessDelay = DefaultSuccessDelay
	}
	return &Controller{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger,
		machine:  NewMachine(deps.Store, deps.Logger),
		exit:     make(chan struct{}),
		terminal: make(chan struct{}),
	}
}

// Run performs the capture attempt and blocks until it ends. It returns the
// final phase. Errors are returned for a missing scan id, camera or connection
// failures, a manual Exit, and context cancellation; a Failed phase reported
// by the analyzer is not an error.
func (c *Controller) Run(ctx context.Context) (Phase, error) {
	if !c.started.CompareAndSwap(false, true) {
		return c.Phase(), ErrAlreadyRunning
	}

	scanID := c.deps.Store.ScanID()
	if scanID == "" {
		c.logger.Error("Capture started without scan id")
		return c.Phase(), ErrMissingScanID
	}
	if c.deps.Store.CapturedImage() != "" {
		return c.Phase(), ErrAlreadyCaptured
	}
	c.mu.Lock()
	c.scanID = scanID
	c.mu.Unlock()

	defer c.release()
	logger := c.logger.With("scan_id", scanID)

	stream, err := c.deps.Camera.Open(ctx)
	if err != nil {
		if cause := c.interrupted(ctx); cause != nil {
			return c.Phase(), cause
		}
		logger.Error("Failed to open camera", "error", err)
		c.fail(ReasonCameraUnavailable, InstructionCameraError)
		return c.Phase(), fmt.Errorf("%w: %w", ErrDeviceAccess, err)
	}
	if !c.adopt(func() { c.stream = stream }) {
		_ = stream.Stop()
		return c.Phase(), ErrExited
	}

	conn, err := c.deps.Connect(ctx, scanID)
	if err != nil {
		if cause := c.interrupted(ctx); cause != nil {
			return c.Phase(), cause
		}
		logger.Error("Failed to connect to analyzer", "error", err)
		c.fail(ReasonConnectionFailed, InstructionConnectionLost)
		return c.Phase(), fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if !c.adopt(func() { c.conn = conn }) {
		_ = conn.Close()
		return c.Phase(), ErrExited
	}

	c.mu.Lock()
	c.lastMessage = time.Now()
	c.mu.Unlock()
	if err := conn.OnMessage(c.handle); err != nil {
		c.fail(ReasonConnectionFailed, InstructionConnectionLost)
		return c.Phase(), fmt.Errorf("%w: %w", ErrTransport, err)
	}

	samplerCtx, stopSampler := context.WithCancel(ctx)
	if !c.adopt(func() { c.stopSampler = stopSampler }) {
		stopSampler()
		return c.Phase(), ErrExited
	}
	smp := sampler.New(stream, sampler.Options{
		Interval: c.opts.SampleInterval,
		MaxWidth: c.opts.MaxFrameWidth,
		Quality:  c.opts.JPEGQuality,
		OnDrop:   c.deps.Metrics.FrameDropped,
		Logger:   logger,
	})
	frames, err := smp.Start(samplerCtx)
	if err != nil {
		if cause := c.interrupted(ctx); cause != nil {
			return c.Phase(), cause
		}
		logger.Error("Failed to start frame sampler", "error", err)
		c.fail(ReasonCameraUnavailable, InstructionCameraError)
		return c.Phase(), fmt.Errorf("%w: %w", ErrDeviceAccess, err)
	}
	go c.pump(frames, conn)
	logger.Info("Capture running")

	return c.wait(ctx, logger)
}

func (c *Controller) wait(ctx context.Context, logger *slog.Logger) (Phase, error) {
	var timeout <-chan time.Time
	if c.opts.PhaseTimeout > 0 {
		ticker := time.NewTicker(c.opts.PhaseTimeout / 4)
		defer ticker.Stop()
		timeout = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Capture cancelled", "phase", c.Phase())
			return c.Phase(), ctx.Err()

		case <-c.exit:
			logger.Info("Capture exited", "phase", c.Phase())
			return c.Phase(), ErrExited

		case <-timeout:
			c.mu.Lock()
			silent := time.Since(c.lastMessage)
			c.mu.Unlock()
			if silent >= c.opts.PhaseTimeout {
				logger.Warn("Analyzer stopped responding", "silent_for", silent)
				c.fail(ReasonNoResponse, "Error: "+ReasonNoResponse+".")
			}

		case <-c.terminal:
			c.release()
			phase := c.Phase()
			c.deps.Metrics.CaptureFinished(phase.Kind.String())
			if phase.Kind != KindSucceeded {
				logger.Warn("Capture failed", "reason", phase.Reason)
				return phase, nil
			}
			logger.Info("Capture succeeded", "image", phase.ImageRef, "frames_sent", c.FramesSent())
			return phase, c.navigateAfterSuccess(ctx)
		}
	}
}

// navigateAfterSuccess leaves the success message on screen briefly, then moves on
func (c *Controller) navigateAfterSuccess(ctx context.Context) error {
	timer := time.NewTimer(c.opts.SuccessDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.exit:
		return nil
	case <-timer.C:
	}
	if c.deps.Navigator == nil {
		return nil
	}
	if err := c.deps.Navigator.Navigate(ctx, nav.StepPostCapture); err != nil {
		return fmt.Errorf("failed to navigate after capture: %w", err)
	}
	return nil
}

func (c *Controller) pump(frames <-chan models.Frame, conn Connection) {
	for f := range frames {
		if conn.Send(f.Data) {
			c.framesSent.Add(1)
			c.deps.Metrics.FrameSent()
		}
	}
}

// handle is the analyzer message handler. The transport calls it from a
// single goroutine, in arrival order.
func (c *Controller) handle(e transport.Event) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	var changed bool
	if e.Err != nil {
		changed = c.machine.Fail(ReasonConnectionLost, InstructionConnectionLost)
	} else {
		c.lastMessage = time.Now()
		changed = c.machine.HandleRaw(e.Payload)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap, changed)
}

func (c *Controller) fail(reason, instruction string) {
	c.mu.Lock()
	changed := c.machine.Fail(reason, instruction)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap, changed)
}

func (c *Controller) publish(snap Snapshot, changed bool) {
	if changed {
		c.deps.Metrics.PhaseChanged(snap.Phase)
	}
	if c.deps.Observer != nil {
		c.deps.Observer(snap)
	}
	if snap.Terminal {
		c.terminalOnce.Do(func() { close(c.terminal) })
	}
}

// Exit ends the attempt from outside, e.g. when the user leaves the page.
// Resources are released immediately. Safe to call at any time, any number
// of times.
func (c *Controller) Exit() {
	c.exitOnce.Do(func() { close(c.exit) })
	c.release()
}

// interrupted reports why acquisition was cut short: ErrExited after Exit,
// the context error after cancellation, nil when neither happened.
func (c *Controller) interrupted(ctx context.Context) error {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return ErrExited
	}
	return ctx.Err()
}

// adopt records an acquired resource unless the controller was already
// released, in which case the caller must free it.
func (c *Controller) adopt(set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false
	}
	set()
	return true
}

// release is the single teardown path
func (c *Controller) release() {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		c.released = true
		stopSampler, stream, conn := c.stopSampler, c.stream, c.conn
		phase := c.machine.Phase()
		c.mu.Unlock()

		if stopSampler != nil {
			stopSampler()
		}
		if stream != nil {
			if err := stream.Stop(); err != nil {
				c.logger.Warn("Failed to stop camera", "error", err)
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				c.logger.Warn("Failed to close analyzer connection", "error", err)
			}
		}
		c.logger.Debug("Capture resources released", "phase", phase)
	})
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Phase()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// FramesSent returns how many frames reached the connection
func (c *Controller) FramesSent() int {
	return int(c.framesSent.Load())
}

func (c *Controller) snapshotLocked() Snapshot {
	p := c.machine.Phase()
	snap := Snapshot{
		ScanID:      c.scanID,
		Phase:       p.Kind.String(),
		ImageRef:    p.ImageRef,
		Reason:      p.Reason,
		Instruction: c.machine.Instruction(),
		Terminal:    p.Terminal(),
		At:          time.Now(),
	}
	if p.Kind == KindCountdown {
		seconds := p.SecondsRemaining
		snap.Seconds = &seconds
	}
	return snap
}

type noopMetrics struct{}

func (noopMetrics) FrameSent()             {}
func (noopMetrics) FrameDropped()          {}
func (noopMetrics) PhaseChanged(string)    {}
func (noopMetrics) CaptureFinished(string) {}
