package session

import "log/slog"

// PermissionPrompt requests the OS-level screen-capture permission grant
// out of band (spec §1: "Permission acquisition UI ... external
// collaborators, interfaces only"). AutoGrantPermissionPrompt stands in for
// a real prompt so the core runs end to end without a platform adapter.
type PermissionPrompt interface {
	RequestCapturePermission() bool
}

// AutoGrantPermissionPrompt immediately grants permission. It is the
// default used by New when no PermissionPrompt is supplied.
type AutoGrantPermissionPrompt struct{}

func (AutoGrantPermissionPrompt) RequestCapturePermission() bool { return true }

// NoopInputAdapter logs every descriptor instead of injecting it. It lets
// the core run end to end (and be tested end to end) without a platform
// adapter wired in.
type NoopInputAdapter struct {
	log *slog.Logger
}

// NewNoopInputAdapter constructs a logging-only InputAdapter.
func NewNoopInputAdapter(log *slog.Logger) *NoopInputAdapter {
	return &NoopInputAdapter{log: log}
}

func (a *NoopInputAdapter) Tap(t Tap) {
	a.log.Debug("gesture tap", "x", t.X, "y", t.Y, "durationMs", t.DurationMs)
}

func (a *NoopInputAdapter) LongPress(p LongPress) {
	a.log.Debug("gesture long_press", "x", p.X, "y", p.Y, "durationMs", p.DurationMs)
}

func (a *NoopInputAdapter) Swipe(s Swipe) {
	a.log.Debug("gesture swipe", "x1", s.X1, "y1", s.Y1, "x2", s.X2, "y2", s.Y2, "durationMs", s.DurationMs)
}

func (a *NoopInputAdapter) MultiStep(m MultiStep) {
	a.log.Debug("gesture multi_step", "points", len(m.Points), "durationMs", m.DurationMs)
}

func (a *NoopInputAdapter) Key(k Key) {
	a.log.Debug("gesture key", "action", k.Action, "code", k.Code)
}

func (a *NoopInputAdapter) GlobalAction(g GlobalAction) {
	a.log.Debug("gesture global_action", "kind", g.Kind)
}
