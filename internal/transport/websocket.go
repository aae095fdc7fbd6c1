// Package transport owns the duplex connection to the remote analyzer. Frames
// go out as binary messages; status events come back as JSON text messages.
//
// A Session never reconnects. When the connection drops, the handler receives
// a single error event and the caller decides what to do.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrHandlerRegistered = errors.New("message handler already registered")
	ErrConnectionLost    = errors.New("analyzer connection lost")
	ErrMissingScanID     = errors.New("scan id is required")
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 2 * time.Second
	maxInboundMessage       = 1 << 20
)

// Event is one inbound delivery: a message payload, or the error that ended
// the connection. Err is set on at most one event, which is always the last.
type Event struct {
	Payload []byte
	Err     error
}

// Handler receives inbound events in arrival order
type Handler func(Event)

type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

// Session is one websocket connection scoped to a scan session
type Session struct {
	conn         *websocket.Conn
	scanID       string
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu    sync.Mutex
	closed     atomic.Bool
	registered atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
}

// URL builds the analyzer endpoint for a scan: {base}/ws/{scanID}. http and
// https bases are mapped to ws and wss.
func URL(base, scanID string) (string, error) {
	if scanID == "" {
		return "", ErrMissingScanID
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid analyzer url '%s': %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid analyzer url '%s': unsupported scheme %q", base, u.Scheme)
	}
	// the scan id is one opaque segment; RawPath keeps reserved characters escaped exactly once
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + "/ws/" + url.PathEscape(scanID)
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + scanID
	return u.String(), nil
}

// Dial opens the analyzer connection for scanID
func Dial(ctx context.Context, baseURL, scanID string, opts Options) (*Session, error) {
	endpoint, err := URL(baseURL, scanID)
	if err != nil {
		return nil, err
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to analyzer (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to analyzer: %w", err)
	}
	conn.SetReadLimit(maxInboundMessage)
	logger.Info("Analyzer connected", "url", endpoint)

	return &Session{
		conn:         conn,
		scanID:       scanID,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}, nil
}

// Send writes one binary frame. Frames are dropped silently when the session
// is closed or the write fails; the return value reports whether it went out.
func (s *Session) Send(frame []byte) bool {
	if s.closed.Load() {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return false
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.logger.Debug("Dropping frame", "scan_id", s.scanID, "error", err)
		return false
	}
	return true
}

// OnMessage registers the single handler and starts delivering messages
func (s *Session) OnMessage(h Handler) error {
	if !s.registered.CompareAndSwap(false, true) {
		return ErrHandlerRegistered
	}
	go s.readLoop(h)
	return nil
}

func (s *Session) readLoop(h Handler) {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.closed.Store(true)
			s.logger.Warn("Analyzer connection ended", "scan_id", s.scanID, "error", err)
			h(Event{Err: fmt.Errorf("%w: %v", ErrConnectionLost, err)})
			return
		}
		h(Event{Payload: data})
	}
}

// Close shuts the connection down. It is safe to call repeatedly and after
// the peer already closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		deadline := time.Now().Add(s.writeTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		_ = s.conn.Close()
		s.logger.Debug("Analyzer connection closed", "scan_id", s.scanID)
	})
	return nil
}

// Done is closed when the read loop has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}
