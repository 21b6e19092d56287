package encoder

import (
	"fmt"
	"sync"
	"time"

	openh264 "github.com/y9o/go-openh264"

	"github.com/LanternOps/rc-agent/internal/buffer"
)

// Primary wraps go-openh264 behind the uniform Backend interface: 15 fps
// target, 2 Mbps CBR, 2-second keyframe interval, baseline/L3.1 profile,
// matching spec §4.3. This is the concrete H264 bitstream encoder named in
// the expanded dependency table; go-openh264 is not called anywhere else in
// the teacher's tree (it is declared in go.mod but unused there), so this
// wrapper isolates its exact call shape to one file, the same isolation
// idiom the teacher uses for its per-platform hardware backends.
type Primary struct {
	mu      sync.Mutex
	cfg     Params
	surface SurfaceHandle
	enc     *openh264.Encoder

	pendingIDR bool
	frames     []buffer.Frame
}

// NewPrimary constructs an unstarted Primary backend.
func NewPrimary() *Primary {
	return &Primary{}
}

func (p *Primary) Name() string { return "primary-h264" }

// Start initializes the OpenH264 encoder for the given dimensions. Any
// construction failure is reported as InitFailed so Pipeline.Start can
// downgrade to Fallback.
func (p *Primary) Start(width, height int, params Params) (SurfaceHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if params.TargetFPS <= 0 {
		params.TargetFPS = 15
	}
	if params.BitrateBps <= 0 {
		params.BitrateBps = 2_000_000
	}
	if params.KeyframeIntervalS <= 0 {
		params.KeyframeIntervalS = 2
	}

	enc, err := openh264.NewEncoder(openh264.Config{
		Width:            width,
		Height:           height,
		BitrateBps:       params.BitrateBps,
		MaxFrameRate:     float32(params.TargetFPS),
		KeyFrameInterval: params.KeyframeIntervalS * params.TargetFPS,
		Profile:          openh264.ProfileBaseline,
		Level:            openh264.Level3_1,
		RateControl:      openh264.RateControlCBR,
	})
	if err != nil {
		return SurfaceHandle{}, newError(InitFailed, fmt.Errorf("openh264 init: %w", err))
	}

	p.enc = enc
	p.cfg = params
	p.surface = SurfaceHandle{Width: width, Height: height}
	p.frames = nil
	return p.surface, nil
}

// Submit hands one captured RGBA frame to the encoder, converting to I420
// (the colorspace OpenH264 consumes) and appending the resulting NAL unit to
// the pending-drain buffer.
func (p *Primary) Submit(rgba []byte, stride int, timestampMs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enc == nil {
		return newError(RuntimeError, errNotInitialized)
	}

	y, u, v := rgbaToI420(rgba, p.surface.Width, p.surface.Height, stride)

	forceIDR := p.pendingIDR
	p.pendingIDR = false

	nal, isIDR, err := p.enc.EncodeI420(y, u, v, forceIDR)
	if err != nil {
		return newError(RuntimeError, fmt.Errorf("openh264 encode: %w", err))
	}
	if nal == nil {
		// Encoder buffered internally and has nothing to emit this tick;
		// not an error.
		return nil
	}

	p.frames = append(p.frames, buffer.Frame{
		Data:        nal,
		IsKeyframe:  isIDR,
		Codec:       CodecH264,
		TimestampMs: timestampMs,
	})
	return nil
}

// Drain returns and clears whatever Submit has produced so far. deadline is
// accepted for interface symmetry with backends that perform blocking I/O;
// this CPU-bound path never blocks past it.
func (p *Primary) Drain(deadline time.Time) ([]buffer.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.frames
	p.frames = nil
	return out, nil
}

// ForceKeyframe requests the next Submit produce an IDR.
func (p *Primary) ForceKeyframe() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingIDR = true
	return nil
}

// Stop releases the codec. Idempotent.
func (p *Primary) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enc == nil {
		return nil
	}
	err := p.enc.Close()
	p.enc = nil
	p.frames = nil
	return err
}

// rgbaToI420 converts a packed RGBA (or BGRA with swapped channel reads; the
// screenshot backend always yields RGBA here) buffer into planar I420 using
// BT.601 fixed-point coefficients, the same arithmetic idiom as the
// teacher's bgraToNV12 in colorconv.go, adapted from interleaved NV12 output
// to separate U/V planes since OpenH264 consumes I420, not NV12.
func rgbaToI420(rgba []byte, width, height, stride int) (y, u, v []byte) {
	y = make([]byte, width*height)
	chromaW, chromaH := (width+1)/2, (height+1)/2
	u = make([]byte, chromaW*chromaH)
	v = make([]byte, chromaW*chromaH)

	for row := 0; row < height; row++ {
		rowOff := row * stride
		yRowOff := row * width
		for col := 0; col < width; col++ {
			pi := rowOff + col*4
			r := int(rgba[pi+0])
			g := int(rgba[pi+1])
			b := int(rgba[pi+2])

			yVal := clampByte((66*r+129*g+25*b+128)>>8 + 16)
			y[yRowOff+col] = yVal

			if row%2 == 0 && col%2 == 0 {
				uVal := clampByte((-38*r-74*g+112*b+128)>>8 + 128)
				vVal := clampByte((112*r-94*g-18*b+128)>>8 + 128)
				ci := (row/2)*chromaW + col/2
				u[ci] = uVal
				v[ci] = vVal
			}
		}
	}
	return y, u, v
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
