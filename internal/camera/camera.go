// Package camera provides live video sources for the capture step.
package camera

import (
	"context"
	"errors"
	"image"
)

// ErrUnavailable is returned when the camera cannot be opened or never
// delivers a frame (missing device, permission denied, ffmpeg not installed).
var ErrUnavailable = errors.New("camera unavailable")

// Device opens a live video stream
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open video stream. Only the most recent frame is kept.
type Stream interface {
	// WaitReady blocks until the first frame has arrived or the stream failed.
	WaitReady(ctx context.Context) error
	// Latest returns the most recent frame, nil before the first one.
	Latest() image.Image
	// Stop releases the device. Calling it more than once is safe.
	Stop() error
}
