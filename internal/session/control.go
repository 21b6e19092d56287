package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LanternOps/rc-agent/internal/channel"
	"github.com/LanternOps/rc-agent/internal/gesture"
	"github.com/LanternOps/rc-agent/internal/logging"
	"github.com/LanternOps/rc-agent/internal/wire"
)

// inboundViewport carries the sender-side viewport and local display
// rotation that accompany a gesture descriptor, letting SessionController
// (re)configure the GestureMapper as the remote's geometry changes.
type inboundViewport struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

// inboundControlEvent is the payload shape of a control_event frame carrying
// a gesture or key descriptor in sender-side viewport coordinates, per
// spec §6's "control_event{...} (gesture/key descriptors)". Fields unused by
// a given Type are simply omitted on the wire.
type inboundControlEvent struct {
	Type       string           `json:"type"`
	Viewport   *inboundViewport `json:"viewport,omitempty"`
	X          float64          `json:"x,omitempty"`
	Y          float64          `json:"y,omitempty"`
	X1         float64          `json:"x1,omitempty"`
	Y1         float64          `json:"y1,omitempty"`
	X2         float64          `json:"x2,omitempty"`
	Y2         float64          `json:"y2,omitempty"`
	Points     []gesturePoint   `json:"points,omitempty"`
	DurationMs int              `json:"duration_ms,omitempty"`
	Action     string           `json:"action,omitempty"`
	Code       string           `json:"code,omitempty"`
	Shift      bool             `json:"shift,omitempty"`
	Ctrl       bool             `json:"ctrl,omitempty"`
	Alt        bool             `json:"alt,omitempty"`
	Meta       bool             `json:"meta,omitempty"`
	Kind       string           `json:"kind,omitempty"`
}

type gesturePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// deviceEventPayload is the outbound device_event shape SessionController
// uses to report PermissionDenied and other upstream-visible failures.
type deviceEventPayload struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Session string `json:"session_id,omitempty"`
}

// handleControlEvent is the EventHandler bound to the control ChannelClient.
// It runs on the client's read-pump goroutine, so every branch must return
// promptly; gesture dispatch is handed off to the worker pool.
func (c *Controller) handleControlEvent(msg wire.Message) {
	switch msg.Event {
	case wire.EventStartSession:
		c.onStartSession(msg.Payload)
	case wire.EventControlEvent:
		c.onControlEvent(msg.Payload)
	case wire.EventSessionStop:
		c.onSessionStopped()
	default:
		c.log.Warn("control channel: unhandled event", "event", msg.Event)
	}
}

// onStartSession implements the Standby -> PermissionPending|Streaming row
// of spec §4.8's transition table.
func (c *Controller) onStartSession(payload json.RawMessage) {
	var p wire.StartSessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("start_session: malformed payload", "error", err)
		return
	}
	if p.SessionID == "" {
		c.log.Warn("start_session: empty session_id, ignoring")
		return
	}

	if c.State() != StateStandby {
		c.log.Warn("start_session: ignored outside Standby", "state", c.State())
		return
	}

	if c.coordinator.HasCachedPermission() {
		c.beginStreaming(p.SessionID)
		return
	}

	c.setState(StatePermissionPending)
	go c.requestPermission(p.SessionID)
}

// requestPermission runs the out-of-band permission prompt off the
// read-pump goroutine and, on grant, starts streaming; on denial or
// timeout it reports failure and returns to Standby, per spec §7's
// PermissionDenied policy.
func (c *Controller) requestPermission(sessionID string) {
	grantedCh := make(chan bool, 1)
	go func() {
		grantedCh <- c.permission.RequestCapturePermission()
	}()

	var granted bool
	select {
	case granted = <-grantedCh:
	case <-time.After(permissionTimeout):
		granted = false
	}

	if c.State() != StatePermissionPending {
		return
	}

	if !granted {
		c.log.Warn("capture permission denied or timed out", "sessionId", sessionID)
		c.setState(StateStandby)
		c.sendDeviceEvent(deviceEventPayload{Kind: "permission_denied", Session: sessionID})
		return
	}

	c.beginStreaming(sessionID)
}

// beginStreaming connects the media ChannelClient for sessionID. The
// CaptureCoordinator, media_metadata send, and frame pump are all deferred
// to the media channel's OnJoined callback, matching spec §4.8's "Streaming,
// media channel Joined -> Streaming" row.
func (c *Controller) beginStreaming(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	c.setState(StateStreaming)

	mediaTopic := fmt.Sprintf("%s:%s:%s", c.cfg.MediaTopicPrefix, c.cfg.DeviceID, sessionID)
	headers := deviceHeaders(c.cfg.DeviceID, c.cfg.DeviceToken)

	media := channel.New(channel.Config{
		URL:               c.socketURL,
		Topic:             mediaTopic,
		Headers:           headers,
		JoinPayload:       joinPayload(c.cfg.DeviceToken),
		Framing:           wire.FramingArray,
		HeartbeatInterval: c.heartbeatInterval(),
		OnJoined:          c.onMediaJoined,
	}, nil, c.diag, logging.L("channel:media"))

	c.mu.Lock()
	c.media = media
	c.mu.Unlock()

	go media.Start()
}

// onMediaJoined fires on the media client's read-pump goroutine the first
// time (and every reconnect rejoin) the media channel reaches Joined. It
// starts the CaptureCoordinator, announces media_metadata, and spawns the
// frame pump, per spec §4.8.
func (c *Controller) onMediaJoined() {
	if c.State() != StateStreaming {
		return
	}

	if err := c.coordinator.Start(c.cfg.PrimaryFPS, c.cfg.PrimaryBitrateBps, c.cfg.FallbackFPS, c.cfg.FallbackQuality); err != nil {
		c.log.Error("capture start failed", "error", err)
		c.sendDeviceEvent(deviceEventPayload{Kind: "capture_start_failed", Reason: err.Error()})
		c.teardownToStandby()
		return
	}

	width, height := c.coordinator.Dimensions()
	metadata := wire.MediaMetadata{
		Width:  width,
		Height: height,
		FPS:    c.coordinator.ActiveFPS(),
		Codec:  c.normalizeCodec(c.coordinator.ActiveCodec()),
	}
	body, _ := json.Marshal(metadata)

	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media == nil {
		return
	}
	if err := media.Send(wire.EventMediaMetadata, body); err != nil {
		c.log.Warn("media_metadata send failed", "error", err)
	}

	c.startPump(media)
}

// onControlEvent parses one inbound control_event, maps its coordinates
// through the GestureMapper, and dispatches to the InputAdapter on the
// bounded worker pool so a slow input backend cannot stall the read pump.
func (c *Controller) onControlEvent(payload json.RawMessage) {
	var ev inboundControlEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn("control_event: malformed payload, dropping", "error", err)
		return
	}

	if ev.Viewport != nil {
		width, height := c.coordinator.Dimensions()
		if width > 0 && height > 0 {
			rot := gesture.Rotation(ev.Viewport.Rotation / 90 % 4)
			if err := c.mapper.Configure(ev.Viewport.Width, ev.Viewport.Height, float64(width), float64(height), rot); err != nil {
				c.log.Warn("gesture mapper configure failed", "error", err)
			}
		}
	}

	if !c.pool.Submit(func() { c.dispatchGesture(ev) }) {
		c.log.Warn("control_event: worker pool saturated, dropping", "type", ev.Type)
	}
}

// dispatchGesture runs on a worker-pool goroutine: it maps coordinates and
// calls the matching InputAdapter method. Mapping failures (out-of-bounds
// points, unconfigured mapper) are logged and the gesture is dropped rather
// than forwarded with stale or rejected coordinates.
func (c *Controller) dispatchGesture(ev inboundControlEvent) {
	switch ev.Type {
	case "tap":
		p, err := c.mapper.Map(gesture.Point{X: ev.X, Y: ev.Y})
		if err != nil {
			c.log.Warn("tap rejected", "error", err)
			return
		}
		dur := ev.DurationMs
		if dur == 0 {
			dur = 100
		}
		c.input.Tap(Tap{X: p.X, Y: p.Y, DurationMs: dur})

	case "long_press":
		p, err := c.mapper.Map(gesture.Point{X: ev.X, Y: ev.Y})
		if err != nil {
			c.log.Warn("long_press rejected", "error", err)
			return
		}
		dur := ev.DurationMs
		if dur == 0 {
			dur = 600
		}
		c.input.LongPress(LongPress{X: p.X, Y: p.Y, DurationMs: dur})

	case "swipe":
		mapped, err := c.mapper.MapPoints([]gesture.Point{{X: ev.X1, Y: ev.Y1}, {X: ev.X2, Y: ev.Y2}})
		if err != nil {
			c.log.Warn("swipe rejected", "error", err)
			return
		}
		dur := ev.DurationMs
		if dur == 0 {
			dur = 300
		}
		c.input.Swipe(Swipe{X1: mapped[0].X, Y1: mapped[0].Y, X2: mapped[1].X, Y2: mapped[1].Y, DurationMs: dur})

	case "multi_step":
		points := make([]gesture.Point, len(ev.Points))
		for i, p := range ev.Points {
			points[i] = gesture.Point{X: p.X, Y: p.Y}
		}
		mapped, err := c.mapper.MapPoints(points)
		if err != nil {
			c.log.Warn("multi_step rejected", "error", err)
			return
		}
		out := make([]Point, len(mapped))
		for i, p := range mapped {
			out[i] = Point{X: p.X, Y: p.Y}
		}
		c.input.MultiStep(MultiStep{Points: out, DurationMs: ev.DurationMs})

	case "key":
		c.input.Key(Key{Action: ev.Action, Code: ev.Code, Shift: ev.Shift, Ctrl: ev.Ctrl, Alt: ev.Alt, Meta: ev.Meta})

	case "global_action":
		c.input.GlobalAction(GlobalAction{Kind: ev.Kind})

	default:
		c.log.Warn("control_event: unknown gesture type, dropping", "type", ev.Type)
	}
}

// onSessionStopped implements the "Streaming, control recv session_stopped"
// row of spec §4.8: pause the coordinator (retaining permission), disconnect
// the media client, and return to Standby.
func (c *Controller) onSessionStopped() {
	if c.State() != StateStreaming {
		return
	}
	c.teardownToStandby()
}

// teardownToStandby pauses capture (keeping the cached permission) and
// disconnects the media client without touching the control client,
// returning the controller to Standby so a future start_session can
// reconnect media.
func (c *Controller) teardownToStandby() {
	c.setState(StateTeardown)
	c.stopStreamingLocked(false)
	c.setState(StateStandby)
}

// sendDeviceEvent best-effort reports a device_event on the control
// channel. Failures are logged, not propagated: device_event is a
// diagnostics surface, not a reliability-critical one.
func (c *Controller) sendDeviceEvent(p deviceEventPayload) {
	body, err := json.Marshal(p)
	if err != nil {
		return
	}
	if c.control == nil {
		return
	}
	if err := c.control.Send(wire.EventDeviceEvent, body); err != nil {
		c.log.Warn("device_event send failed", "error", err)
	}
}
