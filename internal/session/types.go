// Package session implements C8 SessionController: the two-client
// (control + media) session state machine that ties together every other
// component — FrameBuffer, Diagnostics, the Encoder pipeline via
// CaptureCoordinator, GestureMapper, WireCodec, and ChannelClient.
// Grounded on Session/SessionManager in session.go (sync.Once-guarded
// stop/cleanup, wg.Wait() before teardown) and session_control.go's
// control-message dispatch switch, generalized from the teacher's single
// WebRTC session per viewer to the Standby/PermissionPending/
// Streaming/Teardown state machine of spec §4.8.
package session

import "fmt"

// State is one of the four states named in spec §4.8.
type State int

const (
	StateStandby State = iota
	StatePermissionPending
	StateStreaming
	StateTeardown
)

func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StatePermissionPending:
		return "permission_pending"
	case StateStreaming:
		return "streaming"
	case StateTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// ErrorKind is the small session-level error taxonomy. The Controller's own
// teardown and recovery paths do not construct or inspect these values.
type ErrorKind int

const (
	TransportFailure ErrorKind = iota
	JoinDenied
	EncoderInitFailed
	EncoderRuntimeError
	FallbackRuntimeError
	CaptureResourceLost
	PermissionDenied
)

func (k ErrorKind) String() string {
	switch k {
	case TransportFailure:
		return "transport_failure"
	case JoinDenied:
		return "join_denied"
	case EncoderInitFailed:
		return "encoder_init_failed"
	case EncoderRuntimeError:
		return "encoder_runtime_error"
	case FallbackRuntimeError:
		return "fallback_runtime_error"
	case CaptureResourceLost:
		return "capture_resource_lost"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// SessionError pairs one ErrorKind with the underlying cause.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Tap, LongPress, Swipe, MultiStep, Key, and GlobalAction are the gesture
// descriptors SessionController emits (in device coordinates, after
// GestureMapper has run) per spec §6. The concrete host OS injection is out
// of scope per spec §1 ("a platform adapter performs them") — InputAdapter
// below is the seam such an adapter implements.
type Tap struct {
	X, Y       float64
	DurationMs int
}

type LongPress struct {
	X, Y       float64
	DurationMs int
}

type Swipe struct {
	X1, Y1, X2, Y2 float64
	DurationMs     int
}

type MultiStep struct {
	Points     []Point
	DurationMs int
}

// Point is a plain (x, y) pair used by MultiStep, independent of
// gesture.Point so this package does not leak the mapper's internal type
// into its public descriptor surface.
type Point struct {
	X, Y float64
}

type Key struct {
	Action string // "down" | "up"
	Code   string
	Shift  bool
	Ctrl   bool
	Alt    bool
	Meta   bool
}

type GlobalAction struct {
	Kind string
}

// InputAdapter performs normalized gesture descriptors against the host OS.
// The default NoopInputAdapter only logs; a real platform adapter would
// implement tap/swipe/key dispatch via OS-specific APIs, which this core
// deliberately treats as an external collaborator (spec §1).
type InputAdapter interface {
	Tap(Tap)
	LongPress(LongPress)
	Swipe(Swipe)
	MultiStep(MultiStep)
	Key(Key)
	GlobalAction(GlobalAction)
}
