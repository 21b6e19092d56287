package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/LanternOps/rc-agent/internal/buffer"
)

// Fallback encodes each captured frame independently as JPEG, matching the
// teacher's EncodeJPEG in encode.go. Per spec §4.3 every output is
// independently decodable, so IsKeyframe is always true. Used once Primary
// reports InitFailed or its first RuntimeError within a session (spec §4.4).
type Fallback struct {
	mu      sync.Mutex
	quality int
	width   int
	height  int
	frames  []buffer.Frame
}

// NewFallback constructs an unstarted Fallback backend.
func NewFallback() *Fallback {
	return &Fallback{}
}

func (f *Fallback) Name() string { return "fallback-jpeg" }

// Start records the target dimensions and quality. Fallback has no
// underlying codec to initialize, so this cannot itself fail with
// InitFailed — it exists purely so the uniform Backend interface is
// satisfied identically to Primary.
func (f *Fallback) Start(width, height int, params Params) (SurfaceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quality := params.Quality
	if quality <= 0 {
		quality = 75
	}
	f.quality = quality
	f.width = width
	f.height = height
	f.frames = nil
	return SurfaceHandle{Width: width, Height: height}, nil
}

// Submit JPEG-encodes the given RGBA frame and queues it for Drain.
func (f *Fallback) Submit(rgba []byte, stride int, timestampMs int64) error {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: stride,
		Rect:   image.Rect(0, 0, f.width, f.height),
	}

	f.mu.Lock()
	quality := f.quality
	f.mu.Unlock()

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return newError(RuntimeError, err)
	}

	f.mu.Lock()
	f.frames = append(f.frames, buffer.Frame{
		Data:        buf.Bytes(),
		IsKeyframe:  true,
		Codec:       CodecMJPEG,
		TimestampMs: timestampMs,
	})
	f.mu.Unlock()
	return nil
}

// Drain returns and clears whatever Submit has produced so far.
func (f *Fallback) Drain(deadline time.Time) ([]buffer.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.frames
	f.frames = nil
	return out, nil
}

// Stop is a no-op release; idempotent.
func (f *Fallback) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
	return nil
}
