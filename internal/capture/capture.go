// Package capture implements the C4 CaptureCoordinator: it owns the display
// surface, picks and initializes the active encoder, drives the drain
// ticker, and wires Encoder output into the FrameBuffer. Grounded on
// session_capture.go's capture-loop structure (ticker-driven drain,
// MAX_BATCH hand-up) and capture.go's ScreenCapturer interface, swapped to
// drive the cross-platform vova616/screenshot backend in place of the
// teacher's per-OS GDI/DXGI/Quartz capturers.
package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/vova616/screenshot"

	"github.com/LanternOps/rc-agent/internal/buffer"
	"github.com/LanternOps/rc-agent/internal/encoder"
)

// Errors matching the sentinel style of the teacher's capture.go.
var (
	ErrNotSupported    = fmt.Errorf("capture: screen capture not supported on this platform")
	ErrPermissionDenied = fmt.Errorf("capture: screen capture permission denied")
)

const (
	maxCaptureW = 1280
	maxCaptureH = 800
	drainPeriod = 30 * time.Millisecond
	maxBatch    = 5
)

// ComputeCaptureDimensions derives (capture_w, capture_h) from
// (screen_w, screen_h) per spec §3: preserve aspect ratio, fit inside
// (maxCaptureW, maxCaptureH), both dimensions even. Grounded in the same
// aspect-preserving idiom the teacher uses for ScaleFactor in
// ws_stream.go's StreamConfig.
func ComputeCaptureDimensions(screenW, screenH int) (int, int) {
	return computeCaptureDimensions(screenW, screenH, maxCaptureW, maxCaptureH)
}

// computeCaptureDimensions is ComputeCaptureDimensions parameterized on the
// configured ceiling, so a Coordinator built with a non-default
// capture_max_width/height (internal/config) still gets the same
// aspect-preserving, even-dimension fit.
func computeCaptureDimensions(screenW, screenH, maxW, maxH int) (int, int) {
	if screenW <= 0 || screenH <= 0 {
		return 0, 0
	}

	scale := 1.0
	if sw := float64(maxW) / float64(screenW); sw < scale {
		scale = sw
	}
	if sh := float64(maxH) / float64(screenH); sh < scale {
		scale = sh
	}

	w := int(float64(screenW) * scale)
	h := int(float64(screenH) * scale)

	if w%2 != 0 {
		w--
	}
	if h%2 != 0 {
		h--
	}
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

// Coordinator drives capture→encode→buffer for the duration of one
// Streaming session.
type Coordinator struct {
	log  *slog.Logger
	diag diagnosticsSink

	mu            sync.Mutex
	pipeline      *encoder.Pipeline
	buf           *buffer.FrameBuffer
	captureW      int
	captureH      int
	maxCaptureW   int
	maxCaptureH   int
	primaryFPS    int
	fallbackFPS   int
	stopCh        chan struct{}
	wg            sync.WaitGroup
	running       bool
	hasPermission bool
}

// diagnosticsSink is the narrow slice of diagnostics.Diagnostics the
// coordinator needs, kept as an interface so capture stays decoupled from
// the diagnostics package's concrete type.
type diagnosticsSink interface {
	RecordFrameEncoded(sizeBytes int, isKeyframe bool, at time.Time)
	RecordFrameDropped()
	RecordEncodingError()
}

// New constructs a Coordinator bound to the given FrameBuffer and
// diagnostics sink, capping capture resolution at maxW x maxH (spec §3's
// capture_max_width/height, sourced from internal/config). A non-positive
// value on either axis falls back to the package default (maxCaptureW,
// maxCaptureH).
func New(buf *buffer.FrameBuffer, diag diagnosticsSink, log *slog.Logger, maxW, maxH int) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		buf:         buf,
		diag:        diag,
		log:         log,
		maxCaptureW: maxW,
		maxCaptureH: maxH,
	}
}

// Start measures the screen, computes capture dimensions, constructs the
// encoder pipeline (Primary, downgrading to Fallback on InitFailed), and
// starts the drain ticker. Matches the sequence in spec §4.4. fallbackFPS is
// the frame rate reported in media_metadata when the pipeline is running
// the fallback codec (spec §8 scenario S3), independent of the primary
// capture cadence.
func (c *Coordinator) Start(fps, bitrateBps, fallbackFPS, fallbackQuality int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	bounds, err := screenshot.ScreenRect()
	if err != nil {
		return fmt.Errorf("capture: %w: %v", ErrNotSupported, err)
	}
	screenW, screenH := bounds.Dx(), bounds.Dy()
	if screenW <= 0 || screenH <= 0 {
		return fmt.Errorf("capture: %w", ErrNotSupported)
	}

	maxW, maxH := c.maxCaptureW, c.maxCaptureH
	if maxW <= 0 || maxH <= 0 {
		maxW, maxH = maxCaptureW, maxCaptureH
	}
	captureW, captureH := computeCaptureDimensions(screenW, screenH, maxW, maxH)
	c.captureW, c.captureH = captureW, captureH
	c.primaryFPS = fps
	c.fallbackFPS = fallbackFPS

	pipeline := encoder.NewPipeline(c.log)
	_, err = pipeline.Start(captureW, captureH, encoder.Params{
		Width:             captureW,
		Height:            captureH,
		TargetFPS:         fps,
		BitrateBps:        bitrateBps,
		KeyframeIntervalS: 2,
		Quality:           fallbackQuality,
	})
	if err != nil {
		return fmt.Errorf("capture: encoder start: %w", err)
	}
	c.pipeline = pipeline
	c.hasPermission = true

	c.stopCh = make(chan struct{})
	c.running = true
	c.wg.Add(1)
	go c.drainLoop(bounds)
	return nil
}

// drainLoop is the capture/encode execution context named in spec §5: it
// must never block on the network. Each tick captures one screen image,
// submits it to the encoder pipeline, drains whatever frames are ready, and
// pushes at most maxBatch of them into the FrameBuffer; frames beyond
// maxBatch from one drain are discarded without being counted.
func (c *Coordinator) drainLoop(bounds image.Rectangle) {
	defer c.wg.Done()

	ticker := time.NewTicker(drainPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick(bounds)
		}
	}
}

func (c *Coordinator) tick(bounds image.Rectangle) {
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		c.log.Warn("screen capture failed", "error", err)
		return
	}

	scaled := scaleToCapture(img, c.captureW, c.captureH)
	now := time.Now()

	c.mu.Lock()
	pipeline := c.pipeline
	c.mu.Unlock()
	if pipeline == nil {
		return
	}

	if err := pipeline.Submit(scaled.Pix, scaled.Stride, now.UnixMilli()); err != nil {
		c.log.Warn("encoder submit failed", "error", err)
		c.diag.RecordEncodingError()
		return
	}

	frames, err := pipeline.Drain(now.Add(drainPeriod))
	if err != nil {
		c.log.Warn("encoder drain failed", "error", err)
		c.diag.RecordEncodingError()
		return
	}

	batch := frames
	if len(batch) > maxBatch {
		batch = batch[:maxBatch]
	}
	for _, f := range batch {
		c.diag.RecordFrameEncoded(len(f.Data), f.IsKeyframe, now)
		result := c.buf.TryPush(f)
		if result == buffer.DroppedOldPFrame || result == buffer.DroppedNew {
			c.diag.RecordFrameDropped()
		}
	}
}

// ActiveCodec reports the normalized codec name of the currently active
// encoder backend ("h264" or "mjpeg"), used by SessionController to
// populate media_metadata.
func (c *Coordinator) ActiveCodec() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline == nil {
		return ""
	}
	if c.pipeline.IsDowngraded() {
		return encoder.CodecMJPEG
	}
	return encoder.CodecH264
}

// ActiveFPS reports the frame rate that should be advertised in
// media_metadata for the currently active encoder backend.
func (c *Coordinator) ActiveFPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline != nil && c.pipeline.IsDowngraded() {
		return c.fallbackFPS
	}
	return c.primaryFPS
}

// Dimensions returns the negotiated capture width/height.
func (c *Coordinator) Dimensions() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captureW, c.captureH
}

// Pause tears down the encoder and capture resource but retains the
// capture-permission token for reuse, matching spec §4.4's pause()/stop()
// split.
func (c *Coordinator) Pause() {
	c.stopInternal(false)
}

// Stop releases the permission as well as the encoder/capture resource.
func (c *Coordinator) Stop() {
	c.stopInternal(true)
}

func (c *Coordinator) stopInternal(releasePermission bool) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stopCh := c.stopCh
	pipeline := c.pipeline
	c.running = false
	c.pipeline = nil
	if releasePermission {
		c.hasPermission = false
	}
	c.mu.Unlock()

	close(stopCh)
	c.wg.Wait()

	if pipeline != nil {
		if err := pipeline.Stop(); err != nil {
			c.log.Warn("encoder stop failed", "error", err)
		}
	}
}

// HasCachedPermission reports whether a prior session's capture permission
// is still held, letting SessionController skip PermissionPending.
func (c *Coordinator) HasCachedPermission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPermission
}

// scaleToCapture downsamples img (full screen resolution) to the target
// capture dimensions via nearest-neighbor sampling, matching the teacher's
// ScaleImageFast idiom in encode.go.
func scaleToCapture(img *image.RGBA, targetW, targetH int) *image.RGBA {
	srcW, srcH := img.Rect.Dx(), img.Rect.Dy()
	if srcW == targetW && srcH == targetH {
		return img
	}
	if targetW <= 0 || targetH <= 0 {
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xRatio := float64(srcW) / float64(targetW)
	yRatio := float64(srcH) / float64(targetH)

	for y := 0; y < targetH; y++ {
		srcY := int(float64(y) * yRatio)
		for x := 0; x < targetW; x++ {
			srcX := int(float64(x) * xRatio)
			si := img.PixOffset(img.Rect.Min.X+srcX, img.Rect.Min.Y+srcY)
			di := out.PixOffset(x, y)
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return out
}
