package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// StillDevice serves a single image file as a live stream. It lets the capture
// flow run on machines without a camera.
type StillDevice struct {
	Path string
}

func (d *StillDevice) Open(_ context.Context) (Stream, error) {
	file, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode '%s': %v", ErrUnavailable, d.Path, err)
	}

	s := newLiveStream(func() error { return nil })
	s.latest = img
	s.once.Do(func() { close(s.ready) })
	return s, nil
}
