// Package encoder implements the C3 Encoder adapters: a uniform interface
// over a Primary hardware-class H264 backend and a Fallback JPEG backend,
// with the one-way Primary→Fallback downgrade described in spec §4.3/§4.4.
// It is grounded on the teacher's internal/remote/desktop/encoder.go
// VideoEncoder + encoderBackend + backendFactory pattern, generalized from a
// GPU-surface pipeline to the CPU pixel-buffer path this module's
// cross-platform capture backend produces.
package encoder

import (
	"errors"
	"fmt"
	"time"

	"github.com/LanternOps/rc-agent/internal/buffer"
)

// ErrorKind classifies encoder failures per spec §4.3.
type ErrorKind int

const (
	InitFailed ErrorKind = iota
	RuntimeError
	SurfaceLost
)

func (k ErrorKind) String() string {
	switch k {
	case InitFailed:
		return "init_failed"
	case RuntimeError:
		return "runtime_error"
	case SurfaceLost:
		return "surface_lost"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its ErrorKind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("encoder: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Params configures a Backend at Start time.
type Params struct {
	Width             int
	Height            int
	TargetFPS         int
	BitrateBps        int
	KeyframeIntervalS int
	Quality           int // JPEG quality, fallback only
}

// SurfaceHandle is the opaque return of Start; this CPU-pixel-buffer
// implementation has no OS surface to share, so it only carries the
// negotiated dimensions back to the caller.
type SurfaceHandle struct {
	Width  int
	Height int
}

// Backend is the uniform interface CaptureCoordinator drives, matching
// spec §4.3's start/drain/stop contract plus a Submit step for handing this
// CPU capture path's raw pixels to the encoder between drain ticks (the
// teacher's GPU path instead shares a DXGI/Metal surface directly; this
// cross-platform backend has no such surface, so pixels must be pushed in).
type Backend interface {
	Start(width, height int, params Params) (SurfaceHandle, error)
	Submit(rgba []byte, stride int, timestampMs int64) error
	Drain(deadline time.Time) ([]buffer.Frame, error)
	Stop() error
	Name() string
}

// ForceKeyframer is implemented by backends that can be asked to emit an
// IDR on the next Drain (optional interface, matching the teacher's
// optionalKeyframeForcer).
type ForceKeyframer interface {
	ForceKeyframe() error
}

// Flusher is implemented by backends that buffer internally and can discard
// that buffer on demand (matching the teacher's Flush()).
type Flusher interface {
	Flush() error
}

// Codec name normalization, matching spec §4.8's "unknown identifiers are
// lowercased and sent as-is with a warning" rule.
const (
	CodecH264  = "h264"
	CodecMJPEG = "mjpeg"
)

var errNotInitialized = errors.New("encoder: backend not started")
