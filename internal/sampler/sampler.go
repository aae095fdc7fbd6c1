// Package sampler turns a live camera stream into a paced sequence of JPEG frames.
package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/bdougie/handscan/internal/models"
)

const (
	// DefaultInterval samples three frames per second
	DefaultInterval = 333 * time.Millisecond
	MinInterval     = 100 * time.Millisecond
	MaxInterval     = 333 * time.Millisecond
	defaultQuality  = 85
)

var (
	ErrAlreadyStarted = errors.New("sampler already started")
	ErrNoSurface      = errors.New("no camera surface available")
)

// Source is the part of a camera stream the sampler reads from
type Source interface {
	WaitReady(ctx context.Context) error
	Latest() image.Image
}

type Options struct {
	Interval time.Duration
	MaxWidth int // down-scale wider frames, 0 keeps the camera size
	Quality  int
	OnSample func()
	OnDrop   func()
	Logger   *slog.Logger
}

// Sampler rasterizes the current camera frame on a fixed cadence. It keeps no
// frame queue: a sample the consumer is not ready for is dropped.
type Sampler struct {
	src     Source
	opts    Options
	logger  *slog.Logger
	started atomic.Bool
	dropped atomic.Int64
	surface *image.RGBA
	seq     int
}

func New(src Source, opts Options) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	opts.Interval = min(max(opts.Interval, MinInterval), MaxInterval)
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = defaultQuality
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{src: src, opts: opts, logger: logger}
}

// Start waits for the first camera frame, allocates the surface at its size and
// begins sampling. The returned channel is closed when ctx is done. A sampler
// can only be started once.
func (s *Sampler) Start(ctx context.Context) (<-chan models.Frame, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if err := s.src.WaitReady(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSurface, err)
	}
	first := s.src.Latest()
	if first == nil {
		return nil, ErrNoSurface
	}
	s.surface = image.NewRGBA(surfaceRect(first.Bounds(), s.opts.MaxWidth))
	s.logger.Debug("Sampler surface allocated",
		"width", s.surface.Bounds().Dx(), "height", s.surface.Bounds().Dy(), "interval", s.opts.Interval)

	out := make(chan models.Frame)
	go s.run(ctx, out)
	return out, nil
}

// Dropped returns the number of samples the consumer was not ready for
func (s *Sampler) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sampler) run(ctx context.Context, out chan<- models.Frame) {
	defer close(out)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := s.sample()
		if err != nil {
			s.logger.Warn("Failed to sample frame", "error", err)
			continue
		}
		if s.opts.OnSample != nil {
			s.opts.OnSample()
		}

		select {
		case out <- frame:
		default:
			s.dropped.Add(1)
			if s.opts.OnDrop != nil {
				s.opts.OnDrop()
			}
		}
	}
}

// sample draws the current frame onto the surface and encodes it
func (s *Sampler) sample() (models.Frame, error) {
	src := s.src.Latest()
	if src == nil {
		return models.Frame{}, ErrNoSurface
	}

	dst := s.surface.Bounds()
	if src.Bounds().Size() == dst.Size() {
		xdraw.Copy(s.surface, dst.Min, src, src.Bounds(), xdraw.Src, nil)
	} else {
		xdraw.ApproxBiLinear.Scale(s.surface, dst, src, src.Bounds(), xdraw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, s.surface, &jpeg.Options{Quality: s.opts.Quality}); err != nil {
		return models.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	s.seq++
	return models.Frame{
		Data:   buf.Bytes(),
		Seq:    s.seq,
		Width:  dst.Dx(),
		Height: dst.Dy(),
	}, nil
}

func surfaceRect(b image.Rectangle, maxWidth int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = max(h*maxWidth/w, 1)
		w = maxWidth
	}
	return image.Rect(0, 0, w, h)
}
