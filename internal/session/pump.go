package session

import (
	"encoding/json"
	"time"

	"github.com/LanternOps/rc-agent/internal/channel"
	"github.com/LanternOps/rc-agent/internal/wire"
)

// pumpIdlePoll is how often the pump checks an empty FrameBuffer. The buffer
// has no blocking-pop primitive (spec §4.8 describes one logically, but the
// mutex-guarded slice in internal/buffer has no condition variable), so the
// pump polls at a period well under one frame interval at any configured
// FPS, matching the drain ticker's own poll-based design in capture.go.
const pumpIdlePoll = 5 * time.Millisecond

// startPump spawns the frame-pump goroutine described in spec §4.8: drain
// the FrameBuffer into the media ChannelClient until stopped. Replaces any
// previously running pump (there is at most one per Streaming session).
func (c *Controller) startPump(media *channel.Client) {
	c.mu.Lock()
	if c.pumpStop != nil {
		close(c.pumpStop)
	}
	stop := make(chan struct{})
	c.pumpStop = stop
	c.mu.Unlock()

	c.pumpWG.Add(1)
	go c.pumpLoop(media, stop)
}

// pumpLoop is the pump task of spec §5: "moves frames from FrameBuffer to
// the media ChannelClient; may suspend on an empty buffer and on socket
// backpressure". It suspends (polls) when the buffer is empty and exits as
// soon as stop is closed, possibly after sending one frame already in
// flight, per spec §5's cancellation rule.
func (c *Controller) pumpLoop(media *channel.Client, stop chan struct{}) {
	defer c.pumpWG.Done()

	ticker := time.NewTicker(pumpIdlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		for {
			frame, ok := c.buf.Pop()
			if !ok {
				break
			}
			envelope := wire.NewFrameEnvelope(frame.Data, frame.IsKeyframe, frame.Codec, frame.TimestampMs)
			body, err := json.Marshal(envelope)
			if err != nil {
				c.log.Warn("frame envelope marshal failed", "error", err)
				continue
			}
			if err := media.Send(wire.EventMediaFrame, body); err != nil {
				c.log.Warn("media_frame send failed", "error", err)
				continue
			}
			c.diag.RecordFrameSent()

			select {
			case <-stop:
				return
			default:
			}
		}
	}
}

// stopStreamingLocked tears down the Streaming-session resources: the pump
// goroutine, the media client, and the CaptureCoordinator. releasePermission
// selects Pause (retain cached permission, spec's session_stopped/
// media-closed row) vs Stop (full release, agent shutdown row). Safe to
// call when nothing is running.
func (c *Controller) stopStreamingLocked(releasePermission bool) {
	c.mu.Lock()
	stop := c.pumpStop
	media := c.media
	c.pumpStop = nil
	c.media = nil
	c.sessionID = ""
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.pumpWG.Wait()

	if media != nil {
		media.Disconnect()
	}

	if releasePermission {
		c.coordinator.Stop()
	} else {
		c.coordinator.Pause()
	}
}
