package channel

import (
	"strconv"
	"testing"
	"time"

	"github.com/LanternOps/rc-agent/internal/wire"
)

type fakeDiag struct {
	heartbeats  int
	reconnects  int
	successes   int
	disconnects int
	netErrors   int
}

func (d *fakeDiag) RecordHeartbeatSent()                   { d.heartbeats++ }
func (d *fakeDiag) RecordReconnectAttempt()                { d.reconnects++ }
func (d *fakeDiag) RecordSuccessfulReconnect(at time.Time)  { d.successes++ }
func (d *fakeDiag) RecordDisconnect(at time.Time)           { d.disconnects++ }
func (d *fakeDiag) RecordNetworkError()                     { d.netErrors++ }

type fakeLogger struct{}

func (fakeLogger) Info(string, ...any)  {}
func (fakeLogger) Warn(string, ...any)  {}
func (fakeLogger) Error(string, ...any) {}

func newTestClient() *Client {
	return New(Config{
		URL:     "ws://127.0.0.1:0/socket",
		Topic:   "device_rc:AAAA",
		Framing: wire.FramingArray,
	}, nil, &fakeDiag{}, fakeLogger{})
}

func TestNextRef_StrictlyIncreasing(t *testing.T) {
	c := newTestClient()
	var prev uint64
	for i := 0; i < 20; i++ {
		ref := c.nextRef()
		n, err := strconv.ParseUint(ref, 10, 64)
		if err != nil {
			t.Fatalf("ref %q not numeric: %v", ref, err)
		}
		if n <= prev {
			t.Fatalf("ref not strictly increasing: prev=%d got=%d", prev, n)
		}
		prev = n
	}
}

func TestInitialState_Idle(t *testing.T) {
	c := newTestClient()
	if c.State() != StateIdle {
		t.Fatalf("initial state = %v, want Idle", c.State())
	}
}

func TestSend_RejectedWhenNotJoined(t *testing.T) {
	c := newTestClient()
	diag := c.diag.(*fakeDiag)
	if err := c.Send(wire.EventControlEvent, nil); err == nil {
		t.Fatal("expected send to fail when not joined")
	}
	if diag.netErrors != 1 {
		t.Fatalf("expected a network error recorded, got %d", diag.netErrors)
	}
}

func TestHandleJoinReply_OKTransitionsToJoined(t *testing.T) {
	c := newTestClient()
	c.setState(StateOpenUnjoined)
	ok := c.handleJoinReply(wire.Message{Payload: []byte(`{"status":"ok"}`)})
	if !ok {
		t.Fatal("expected handleJoinReply to return true on ok status")
	}
	if c.State() != StateJoined {
		t.Fatalf("state = %v, want Joined", c.State())
	}
	diag := c.diag.(*fakeDiag)
	if diag.successes != 1 {
		t.Fatalf("expected successful_reconnects incremented, got %d", diag.successes)
	}
}

func TestHandleJoinReply_ErrorStopsReconnect(t *testing.T) {
	c := newTestClient()
	c.setState(StateOpenUnjoined)
	ok := c.handleJoinReply(wire.Message{Payload: []byte(`{"status":"error"}`)})
	if ok {
		t.Fatal("expected handleJoinReply to return false on error status")
	}
	if c.shouldReconnect.Load() {
		t.Fatal("expected should_reconnect cleared on join denial")
	}
	if c.State() != StateClosing {
		t.Fatalf("state = %v, want Closing", c.State())
	}
}

func TestReconnectBackoffSequence(t *testing.T) {
	// Mirrors spec §8 invariant 6: 1, 2, 4, 8, 16, 32, 60, 60, ... capped at 60s.
	backoff := initialBackoff
	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		got := backoff
		if got != w*time.Second {
			t.Fatalf("step %d: backoff = %v, want %v", i, got, w*time.Second)
		}
		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
