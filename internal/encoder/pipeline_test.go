package encoder

import (
	"testing"
	"time"

	"github.com/LanternOps/rc-agent/internal/buffer"
)

// fakeBackend lets tests drive Pipeline's downgrade logic without the real
// OpenH264 bindings.
type fakeBackend struct {
	name        string
	startErr    error
	submitErr   error
	submitCount int
	stopped     bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Start(width, height int, params Params) (SurfaceHandle, error) {
	if f.startErr != nil {
		return SurfaceHandle{}, newError(InitFailed, f.startErr)
	}
	return SurfaceHandle{Width: width, Height: height}, nil
}

func (f *fakeBackend) Submit(rgba []byte, stride int, timestampMs int64) error {
	f.submitCount++
	if f.submitErr != nil {
		err := f.submitErr
		f.submitErr = nil // only fail once unless test resets it
		return newError(RuntimeError, err)
	}
	return nil
}

func (f *fakeBackend) Drain(deadline time.Time) ([]buffer.Frame, error) {
	return []buffer.Frame{{Data: []byte("x"), Codec: f.name}}, nil
}

func (f *fakeBackend) Stop() error {
	f.stopped = true
	return nil
}

func TestPipeline_ActiveNameReportsActiveBackend(t *testing.T) {
	p := NewPipeline(nil)
	p.active = &fakeBackend{name: "test-primary"}
	if p.ActiveName() != "test-primary" {
		t.Fatalf("active name = %q", p.ActiveName())
	}
}

func TestPipeline_DowngradesOnce(t *testing.T) {
	p := NewPipeline(nil)
	prim := &fakeBackend{name: "primary"}
	fb := &fakeBackend{name: "fallback"}

	p.mu.Lock()
	p.active = prim
	p.surface = SurfaceHandle{Width: 640, Height: 480}
	p.mu.Unlock()

	// Drive the runtime-error path through Submit. Submit constructs a real
	// Fallback internally, so fb is never installed; the test checks the
	// downgrade flag and that the primary was stopped.
	prim.submitErr = errBoom
	if err := p.Submit(nil, 0, 0); err != nil {
		// Submit will attempt to start a real Fallback after downgrade,
		// which succeeds (Fallback.Start never fails), so no error should
		// propagate.
		t.Fatalf("unexpected error after downgrade: %v", err)
	}
	if !p.IsDowngraded() {
		t.Fatal("expected pipeline to report downgraded after a primary runtime error")
	}
	if !prim.stopped {
		t.Fatal("expected the primary backend to be stopped on downgrade")
	}
	_ = fb
}

var errBoom = &fakeErr{"boom"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }
