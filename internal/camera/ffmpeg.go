package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const maxFrameSize = 32 << 20

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegDevice reads a camera through an ffmpeg subprocess that writes an
// MJPEG stream to stdout.
type FFmpegDevice struct {
	Binary string // defaults to "ffmpeg"
	Format string // input format: v4l2, avfoundation, dshow
	Input  string // e.g. /dev/video0
	Width  int
	Height int
	FPS    int
	Logger *slog.Logger
}

// Open starts ffmpeg. The returned stream becomes ready with the first frame.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	cmd := exec.Command(path, d.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", ErrUnavailable, err)
	}
	logger.Info("Camera opened", "input", d.Input, "format", d.Format)

	s := newLiveStream(func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil
	})

	go func() {
		readErr := s.consume(stdout)
		waitErr := cmd.Wait()
		if readErr == nil && waitErr != nil && !s.stopped() {
			readErr = fmt.Errorf("%w: ffmpeg exited: %v: %s", ErrUnavailable, waitErr, stderr.String())
		}
		s.finish(readErr)
	}()

	return s, nil
}

func (d *FFmpegDevice) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d.Format != "" {
		args = append(args, "-f", d.Format)
	}
	if d.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(d.FPS))
	}
	if d.Width > 0 && d.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height))
	}
	return append(args,
		"-i", d.Input,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// liveStream keeps the latest decoded frame of an MJPEG byte stream
type liveStream struct {
	mu      sync.RWMutex
	latest  image.Image
	err     error
	ready   chan struct{}
	once    sync.Once
	stop    sync.Once
	halted  bool
	release func() error
}

func newLiveStream(release func() error) *liveStream {
	return &liveStream{ready: make(chan struct{}), release: release}
}

// consume decodes frames until r is exhausted
func (s *liveStream) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	scanner.Split(scanJPEG)

	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			// ffmpeg occasionally emits a truncated frame on startup
			continue
		}
		s.mu.Lock()
		s.latest = img
		s.mu.Unlock()
		s.once.Do(func() { close(s.ready) })
	}
	if err := scanner.Err(); err != nil && !s.stopped() {
		return fmt.Errorf("failed to read camera stream: %w", err)
	}
	return nil
}

func (s *liveStream) finish(err error) {
	s.mu.Lock()
	if s.err == nil {
		if err == nil {
			err = fmt.Errorf("%w: stream ended", ErrUnavailable)
		}
		s.err = err
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.ready) })
}

func (s *liveStream) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return s.err
	}
	return nil
}

func (s *liveStream) Latest() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *liveStream) Stop() error {
	var err error
	s.stop.Do(func() {
		s.mu.Lock()
		s.halted = true
		s.mu.Unlock()
		err = s.release()
	})
	return err
}

func (s *liveStream) stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted
}

// scanJPEG is a bufio.SplitFunc yielding one complete JPEG image per token.
// Bytes outside SOI/EOI pairs are skipped.
func scanJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) <= 1 {
			return 0, nil, nil
		}
		// the last byte may be the first half of a marker
		return len(data) - 1, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
