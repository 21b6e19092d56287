package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LanternOps/rc-agent/internal/buffer"
	"github.com/LanternOps/rc-agent/internal/capture"
	"github.com/LanternOps/rc-agent/internal/channel"
	"github.com/LanternOps/rc-agent/internal/diagnostics"
	"github.com/LanternOps/rc-agent/internal/encoder"
	"github.com/LanternOps/rc-agent/internal/gesture"
	"github.com/LanternOps/rc-agent/internal/logging"
	"github.com/LanternOps/rc-agent/internal/wire"
	"github.com/LanternOps/rc-agent/internal/workerpool"
)

const (
	gestureWorkers    = 4
	gestureQueueSize  = 64
	permissionTimeout = 30 * time.Second
	drainTimeout      = 5 * time.Second
)

// Config configures one Controller for the lifetime of the agent process.
type Config struct {
	DeviceID    string
	DeviceToken string
	ServerURL   string

	ControlTopicPrefix string
	MediaTopicPrefix   string

	FrameBufferCapacity int
	CaptureMaxWidth     int
	CaptureMaxHeight    int

	HeartbeatIntervalSeconds int

	PrimaryFPS        int
	PrimaryBitrateBps int
	FallbackFPS       int
	FallbackQuality   int
}

// Controller is C8 SessionController: it owns both ChannelClients, the
// CaptureCoordinator, the FrameBuffer, Diagnostics, and GestureMapper, and
// drives the Standby/PermissionPending/Streaming/Teardown state machine of
// spec §4.8. Grounded on Session's field layout in session.go (done
// channel, sync.Once-guarded Stop, wg.Wait() before cleanup).
type Controller struct {
	cfg        Config
	log        *slog.Logger
	diag       *diagnostics.Diagnostics
	buf        *buffer.FrameBuffer
	mapper     *gesture.Mapper
	input      InputAdapter
	permission PermissionPrompt
	pool       *workerpool.Pool

	control *channel.Client
	media   *channel.Client

	coordinator *capture.Coordinator

	mu        sync.Mutex
	state     State
	sessionID string
	socketURL string

	pumpWG   sync.WaitGroup
	pumpStop chan struct{}

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs an unstarted Controller. input may be nil, in which case a
// NoopInputAdapter is used.
func New(cfg Config, input InputAdapter) *Controller {
	if cfg.FrameBufferCapacity <= 0 {
		cfg.FrameBufferCapacity = 30
	}
	log := logging.L("session")
	if input == nil {
		input = NewNoopInputAdapter(log)
	}

	c := &Controller{
		cfg:        cfg,
		log:        log,
		diag:       diagnostics.New(),
		buf:        buffer.New(cfg.FrameBufferCapacity),
		mapper:     gesture.New(),
		input:      input,
		permission: AutoGrantPermissionPrompt{},
		pool:       workerpool.New(gestureWorkers, gestureQueueSize),
		state:      StateStandby,
		done:       make(chan struct{}),
	}
	c.coordinator = capture.New(c.buf, c.diag, logging.L("capture"), cfg.CaptureMaxWidth, cfg.CaptureMaxHeight)
	return c
}

// SetPermissionPrompt overrides the default AutoGrantPermissionPrompt. Call
// before Start.
func (c *Controller) SetPermissionPrompt(p PermissionPrompt) {
	c.permission = p
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Diagnostics returns the controller's Diagnostics aggregator.
func (c *Controller) Diagnostics() *diagnostics.Diagnostics {
	return c.diag
}

// Start connects the control channel and blocks until Stop is called.
// Matches the "start -> Standby" row of spec §4.8's transition table.
func (c *Controller) Start() error {
	socketURL, err := buildSocketURL(c.cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	c.socketURL = socketURL

	headers := deviceHeaders(c.cfg.DeviceID, c.cfg.DeviceToken)
	controlTopic := fmt.Sprintf("%s:%s", c.cfg.ControlTopicPrefix, c.cfg.DeviceID)

	c.control = channel.New(channel.Config{
		URL:               socketURL,
		Topic:             controlTopic,
		Headers:           headers,
		JoinPayload:       joinPayload(c.cfg.DeviceToken),
		Framing:           wire.FramingArray,
		HeartbeatInterval: c.heartbeatInterval(),
	}, c.handleControlEvent, c.diag, logging.L("channel:control"))

	c.setState(StateStandby)
	go c.control.Start()

	<-c.done
	return nil
}

// Stop tears down both clients and the capture coordinator. Idempotent.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.setState(StateTeardown)
		c.stopStreamingLocked(true)
		if c.control != nil {
			c.control.Disconnect()
		}
		c.pool.StopAccepting()
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		c.pool.Drain(ctx)
		cancel()
		close(c.done)
	})
}

func buildSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/socket/websocket"
	return u.String(), nil
}

// heartbeatInterval resolves cfg.HeartbeatIntervalSeconds to a
// time.Duration; zero/unset lets channel.New apply its own default.
func (c *Controller) heartbeatInterval() time.Duration {
	if c.cfg.HeartbeatIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.cfg.HeartbeatIntervalSeconds) * time.Second
}

func deviceHeaders(deviceID, token string) map[string][]string {
	return map[string][]string{
		"X-Device-ID":    {deviceID},
		"X-Device-Token": {token},
	}
}

func joinPayload(token string) []byte {
	b, _ := json.Marshal(map[string]string{"token": token})
	return b
}

// normalizeCodec maps an encoder identifier to "h264" or "mjpeg" per spec
// §4.8's codec-name normalization rule; unknown identifiers are lowercased
// and passed through with a warning.
func (c *Controller) normalizeCodec(name string) string {
	switch name {
	case encoder.CodecH264, "primary-h264":
		return encoder.CodecH264
	case encoder.CodecMJPEG, "fallback-jpeg":
		return encoder.CodecMJPEG
	default:
		lower := strings.ToLower(name)
		c.log.Warn("unrecognized encoder codec name, passing through", "codec", name)
		return lower
	}
}
