package encoder

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/LanternOps/rc-agent/internal/buffer"
)

// Pipeline owns the active Backend and performs the one-way
// Primary→Fallback downgrade described in spec §4.3/§4.4: an InitFailed on
// Primary.Start triggers an immediate downgrade; the first RuntimeError
// surfaced from Primary.Submit during Streaming also downgrades; a second
// failure (now on Fallback) is returned to the caller unchanged, with no
// further downgrade. The Pipeline does not stop itself on such an error, and
// capture.Coordinator only logs and counts it and keeps ticking, so it does
// not end the session. Grounded on session_capture.go's
// gpuEncodeErrors consecutive-failure counter, adapted from "3 consecutive
// GPU errors" to the spec's "first runtime error" threshold.
type Pipeline struct {
	mu      sync.Mutex
	active  Backend
	params  Params
	surface SurfaceHandle
	downgraded bool
	log     *slog.Logger
}

// NewPipeline constructs a Pipeline that will try Primary first.
func NewPipeline(log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{log: log}
}

// Start attempts Primary; on InitFailed it transparently constructs
// Fallback instead, so CaptureCoordinator only observes the final active
// backend.
func (p *Pipeline) Start(width, height int, params Params) (SurfaceHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.params = params

	primary := NewPrimary()
	surface, err := primary.Start(width, height, params)
	if err == nil {
		p.active = primary
		p.surface = surface
		p.downgraded = false
		return surface, nil
	}

	p.log.Warn("primary encoder init failed, downgrading to fallback", "error", err)
	return p.startFallbackLocked(width, height, params)
}

func (p *Pipeline) startFallbackLocked(width, height int, params Params) (SurfaceHandle, error) {
	fb := NewFallback()
	surface, err := fb.Start(width, height, params)
	if err != nil {
		return SurfaceHandle{}, newError(InitFailed, err)
	}
	p.active = fb
	p.surface = surface
	p.downgraded = true
	return surface, nil
}

// Submit pushes one captured frame into the active backend, downgrading to
// Fallback on the first RuntimeError from Primary. A RuntimeError from
// Fallback (already the downgrade target) is returned unchanged —
// irrecoverable, per spec §4.4's "a fallback RuntimeError surfaces as a
// session error".
func (p *Pipeline) Submit(rgba []byte, stride int, timestampMs int64) error {
	p.mu.Lock()
	active := p.active
	alreadyDowngraded := p.downgraded
	p.mu.Unlock()

	if active == nil {
		return newError(RuntimeError, errNotInitialized)
	}

	err := active.Submit(rgba, stride, timestampMs)
	if err == nil {
		return nil
	}

	var encErr *Error
	if !errors.As(err, &encErr) || encErr.Kind != RuntimeError || alreadyDowngraded {
		return err
	}

	p.log.Warn("primary encoder runtime error, downgrading to fallback", "error", err)
	p.mu.Lock()
	_ = active.Stop()
	_, startErr := p.startFallbackLocked(p.surface.Width, p.surface.Height, p.params)
	p.mu.Unlock()
	if startErr != nil {
		return startErr
	}
	return nil
}

// Drain returns whatever the active backend has produced.
func (p *Pipeline) Drain(deadline time.Time) ([]buffer.Frame, error) {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active == nil {
		return nil, nil
	}
	return active.Drain(deadline)
}

// ForceKeyframe forwards to the active backend if it supports it.
func (p *Pipeline) ForceKeyframe() error {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if fk, ok := active.(ForceKeyframer); ok {
		return fk.ForceKeyframe()
	}
	return nil
}

// Stop releases the active backend. Idempotent.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	err := p.active.Stop()
	p.active = nil
	return err
}

// ActiveName reports the active backend's identifier ("primary-h264" or
// "fallback-jpeg"), or "" when no backend is active.
func (p *Pipeline) ActiveName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return ""
	}
	return p.active.Name()
}

// IsDowngraded reports whether the pipeline has fallen back from Primary.
func (p *Pipeline) IsDowngraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downgraded
}
