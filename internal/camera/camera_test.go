package camera

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestScanJPEGSplitsConcatenatedFrames(t *testing.T) {
	a := encodedFrame(t, 8, 4)
	b := encodedFrame(t, 16, 8)

	var stream bytes.Buffer
	stream.WriteString("noise")
	stream.Write(a)
	stream.Write(b)
	stream.Write(b[:len(b)/2]) // truncated trailing frame

	scanner := bufio.NewScanner(&stream)
	scanner.Split(scanJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	require.NoError(t, scanner.Err())
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestLiveStreamKeepsLatestFrame(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encodedFrame(t, 8, 4))
	stream.Write(encodedFrame(t, 32, 16))

	s := newLiveStream(func() error { return nil })
	require.NoError(t, s.consume(&stream))
	s.finish(nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	assert.Equal(t, image.Rect(0, 0, 32, 16), s.Latest().Bounds())
}

func TestLiveStreamWithoutFramesIsUnavailable(t *testing.T) {
	s := newLiveStream(func() error { return nil })
	require.NoError(t, s.consume(bytes.NewReader([]byte("permission denied"))))
	s.finish(nil)

	err := s.WaitReady(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, s.Latest())
}

func TestLiveStreamStopIsIdempotent(t *testing.T) {
	calls := 0
	s := newLiveStream(func() error { calls++; return nil })

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, 1, calls)
	assert.True(t, s.stopped())
}

func TestFFmpegArgs(t *testing.T) {
	d := &FFmpegDevice{Format: "v4l2", Input: "/dev/video0", Width: 1280, Height: 720, FPS: 15}
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", "15",
		"-video_size", "1280x720",
		"-i", "/dev/video0",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-",
	}, d.args())
}

func TestFFmpegMissingBinary(t *testing.T) {
	d := &FFmpegDevice{Binary: "definitely-not-ffmpeg-binary", Input: "/dev/video0"}
	_, err := d.Open(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStillDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hand.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 12, 6))))
	require.NoError(t, f.Close())

	s, err := (&StillDevice{Path: path}).Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.WaitReady(context.Background()))
	assert.Equal(t, 12, s.Latest().Bounds().Dx())
	require.NoError(t, s.Stop())

	_, err = (&StillDevice{Path: filepath.Join(t.TempDir(), "missing.png")}).Open(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
