// Package channel implements the C7 ChannelClient: a single WebSocket
// connection that joins one topic of the topic-multiplexed protocol
// (internal/wire), heartbeats, and reconnects with exponential backoff.
// Grounded almost directly on internal/websocket/client.go's dialer,
// read/write pump goroutines, and reconnect-backoff loop, generalized from
// the teacher's single implicit channel to the topic-join/ref-correlated
// protocol of spec §4.6/§4.7.
package channel

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LanternOps/rc-agent/internal/wire"
)

// State is one of the six states named in spec §3.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpenUnjoined
	StateJoined
	StateClosing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpenUnjoined:
		return "open_unjoined"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 45 * time.Second
	heartbeatPeriod = 30 * time.Second
	maxMessageSize = 512 * 1024
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
	sendQueueSize  = 256
)

// EventHandler is invoked for every inbound application event (not the
// phx_reply for the join, which the client handles itself).
type EventHandler func(msg wire.Message)

// DiagnosticsSink is the narrow slice of diagnostics.Diagnostics a
// ChannelClient needs, kept as an interface so this package stays
// decoupled from the diagnostics package's concrete type.
type DiagnosticsSink interface {
	RecordHeartbeatSent()
	RecordReconnectAttempt()
	RecordSuccessfulReconnect(at time.Time)
	RecordDisconnect(at time.Time)
	RecordNetworkError()
}

// Config configures one ChannelClient.
type Config struct {
	URL         string
	Topic       string
	Headers     http.Header
	JoinPayload []byte
	Framing     wire.Framing

	// HeartbeatInterval overrides the default 30s phx_heartbeat period
	// (internal/config's heartbeat_interval_seconds). Zero uses the default.
	HeartbeatInterval time.Duration

	// OnJoined, if set, is invoked (from the read pump goroutine) every time
	// a phx_join is acknowledged with status ok, including on reconnect
	// rejoins. SessionController uses this to start the CaptureCoordinator
	// only once the media channel is actually Joined (spec §4.8).
	OnJoined func()
}

// Client is a single topic-joined WebSocket connection.
type Client struct {
	cfg     Config
	handler EventHandler
	diag    DiagnosticsSink
	log     Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	sendChan chan []byte
	doneCh   chan struct{}
	stopOnce sync.Once

	runningMu       sync.RWMutex
	isRunning       bool
	shouldReconnect atomic.Bool

	stateMu sync.RWMutex
	state   State

	joinRef    string
	refCounter atomic.Uint64
}

// Logger is the minimal structured-logging surface this package needs,
// satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New constructs an unstarted Client.
func New(cfg Config, handler EventHandler, diag DiagnosticsSink, log Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = heartbeatPeriod
	}
	return &Client{
		cfg:      cfg,
		handler:  handler,
		diag:     diag,
		log:      log,
		sendChan: make(chan []byte, sendQueueSize),
		doneCh:   make(chan struct{}),
	}
}

// State returns the client's current state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Start runs the reconnect loop until Disconnect is called. Intended to be
// run in its own goroutine by the caller (SessionController), mirroring the
// teacher's Client.Start/reconnectLoop split.
func (c *Client) Start() {
	c.runningMu.Lock()
	if c.isRunning {
		c.runningMu.Unlock()
		return
	}
	c.isRunning = true
	c.runningMu.Unlock()
	c.shouldReconnect.Store(true)

	c.reconnectLoop()
}

// Disconnect sets should_reconnect = false, cancels heartbeat/backoff, and
// closes with code 1000. Idempotent.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		c.shouldReconnect.Store(false)
		c.setState(StateClosing)

		c.runningMu.Lock()
		c.isRunning = false
		c.runningMu.Unlock()

		close(c.doneCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.setState(StateIdle)
	})
}

func (c *Client) reconnectLoop() {
	backoff := initialBackoff

	for {
		select {
		case <-c.doneCh:
			return
		default:
		}

		c.setState(StateConnecting)
		if err := c.connectAndJoin(); err != nil {
			c.diag.RecordReconnectAttempt()
			c.log.Warn("channel connect failed", "topic", c.cfg.Topic, "error", err)
			c.setState(StateBackoff)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			select {
			case <-c.doneCh:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff

		pumpDone := make(chan struct{})
		go c.writePump(pumpDone)
		c.readPump()
		close(pumpDone)

		c.diag.RecordDisconnect(time.Now())

		if !c.shouldReconnect.Load() {
			return
		}
		c.runningMu.RLock()
		running := c.isRunning
		c.runningMu.RUnlock()
		if !running {
			return
		}
	}
}

// connectAndJoin dials the socket and writes phx_join directly (exempt from
// the "must be joined" send restriction). It returns as soon as the join is
// written; the join reply is handled later by readPump (handleJoinReply).
func (c *Client) connectAndJoin() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.cfg.URL, c.cfg.Headers)
	if err != nil {
		return fmt.Errorf("channel: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setState(StateOpenUnjoined)

	if c.joinRef == "" {
		c.joinRef = strconv.FormatUint(c.refCounter.Add(1), 10)
	}

	// Phoenix join semantics: the join message's ref equals its own
	// join_ref (spec §8 S1's first outbound message is ref="1"), not a
	// freshly drawn ref from nextRef.
	joinMsg := wire.Message{
		JoinRef: c.joinRef,
		Ref:     c.joinRef,
		Topic:   c.cfg.Topic,
		Event:   wire.EventPhxJoin,
		Payload: c.cfg.JoinPayload,
	}
	data, err := wire.Encode(joinMsg, c.cfg.Framing)
	if err != nil {
		return fmt.Errorf("channel: encode join: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("channel: send join: %w", err)
	}

	return nil
}

// nextRef returns the next strictly-increasing message ref for this client,
// satisfying spec §8 invariant 5.
func (c *Client) nextRef() string {
	return strconv.FormatUint(c.refCounter.Add(1), 10)
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("channel read error", "topic", c.cfg.Topic, "error", err)
			}
			return
		}

		msg, err := wire.Decode(data)
		if err != nil {
			c.log.Warn("channel decode error, dropping message", "topic", c.cfg.Topic, "error", err)
			continue
		}

		if msg.Event == wire.EventPhxReply {
			if !c.handleJoinReply(msg) {
				return
			}
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// handleJoinReply transitions Open-Unjoined -> Joined on status ok, or
// stops auto-reconnect and returns false on status error, per spec §4.7.
func (c *Client) handleJoinReply(msg wire.Message) bool {
	var reply wire.ReplyPayload
	if err := unmarshalPayload(msg.Payload, &reply); err != nil {
		c.log.Warn("channel malformed join reply", "topic", c.cfg.Topic, "error", err)
		return true
	}

	if reply.Status == wire.StatusOK {
		c.setState(StateJoined)
		c.diag.RecordSuccessfulReconnect(time.Now())
		if c.cfg.OnJoined != nil {
			c.cfg.OnJoined()
		}
		return true
	}

	c.log.Warn("channel join denied", "topic", c.cfg.Topic)
	c.shouldReconnect.Store(false)
	c.setState(StateClosing)
	return false
}

func (c *Client) writePump(pumpDone chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pumpDone:
			return
		case <-c.doneCh:
			return

		case data := <-c.sendChan:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.diag.RecordNetworkError()
				c.log.Warn("channel write error", "topic", c.cfg.Topic, "error", err)
				return
			}

		case <-ticker.C:
			if c.State() != StateJoined {
				continue
			}
			hb := wire.Message{
				JoinRef: c.joinRef,
				Ref:     c.nextRef(),
				Topic:   c.cfg.Topic,
				Event:   wire.EventPhxHeartbeat,
			}
			data, err := wire.Encode(hb, c.cfg.Framing)
			if err != nil {
				continue
			}
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.diag.RecordNetworkError()
				return
			}
			c.diag.RecordHeartbeatSent()
		}
	}
}

// Send assigns a fresh monotonic ref and enqueues event/payload for the
// write pump. Non-blocking: if the client is not Joined, or the send queue
// is full, the message is dropped, a network error is recorded, and an
// error is returned.
func (c *Client) Send(event string, payload []byte) error {
	if c.State() != StateJoined {
		c.diag.RecordNetworkError()
		return fmt.Errorf("channel: not joined, dropping %q", event)
	}

	msg := wire.Message{
		JoinRef: c.joinRef,
		Ref:     c.nextRef(),
		Topic:   c.cfg.Topic,
		Event:   event,
		Payload: payload,
	}
	data, err := wire.Encode(msg, c.cfg.Framing)
	if err != nil {
		return fmt.Errorf("channel: encode: %w", err)
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-c.doneCh:
		return fmt.Errorf("channel: client stopped")
	default:
		c.diag.RecordNetworkError()
		return fmt.Errorf("channel: send queue full, dropping %q", event)
	}
}

func unmarshalPayload(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
