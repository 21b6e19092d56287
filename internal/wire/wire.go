// Package wire implements the topic-multiplexed JSON protocol C7 ChannelClient
// speaks: a dual array/object framing, reserved protocol events, and the
// base64 frame envelope used for media_frame payloads. It is modeled on the
// Command/CommandResult JSON-tagged struct pattern in the teacher's
// internal/websocket/client.go, generalized to topic join/ref correlation.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Reserved protocol and application event names (spec §4.6).
const (
	EventPhxJoin      = "phx_join"
	EventPhxReply     = "phx_reply"
	EventPhxHeartbeat = "phx_heartbeat"
	EventSessionStop  = "session_stopped"

	EventMediaFrame    = "media_frame"
	EventMediaMetadata = "media_metadata"
	EventControlEvent  = "control_event"
	EventStartSession  = "start_session"
	EventDeviceEvent   = "device_event"
)

// ReplyStatus values carried in a phx_reply payload.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// FrameType tags whether a media_frame envelope is independently decodable.
const (
	FrameTypeIDR = "idr"
	FrameTypeP   = "p"
)

// Message is the decoded form of one topic-protocol frame, regardless of
// which wire framing (array or object) it arrived in.
type Message struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// arrayFrame is the on-wire shape of array framing:
// [join_ref, ref, topic, event, payload].
type arrayFrame [5]json.RawMessage

// objectFrame is the on-wire shape of object framing.
type objectFrame struct {
	JoinRef json.RawMessage `json:"join_ref"`
	Ref     json.RawMessage `json:"ref"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Framing selects which wire shape Encode produces. Decode accepts either,
// auto-detecting from the first non-whitespace byte.
type Framing int

const (
	FramingArray Framing = iota
	FramingObject
)

// Encode serializes m using the requested framing.
func Encode(m Message, framing Framing) ([]byte, error) {
	payload := m.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}

	switch framing {
	case FramingArray:
		joinRef := jsonStringOrNull(m.JoinRef)
		ref := jsonStringOrNull(m.Ref)
		arr := []json.RawMessage{joinRef, ref, json.RawMessage(quote(m.Topic)), json.RawMessage(quote(m.Event)), payload}
		return json.Marshal(arr)
	case FramingObject:
		obj := objectFrame{
			JoinRef: jsonStringOrNull(m.JoinRef),
			Ref:     jsonStringOrNull(m.Ref),
			Topic:   m.Topic,
			Event:   m.Event,
			Payload: payload,
		}
		return json.Marshal(obj)
	default:
		return nil, fmt.Errorf("wire: unknown framing %d", framing)
	}
}

// Decode parses either framing into a Message. Unknown extra fields on
// object framing are ignored, matching the round-trip law in spec §8.
func Decode(data []byte) (Message, error) {
	trimmed := skipWhitespace(data)
	if len(trimmed) == 0 {
		return Message{}, fmt.Errorf("wire: empty message")
	}

	if trimmed[0] == '[' {
		var arr arrayFrame
		if err := json.Unmarshal(data, &arr); err != nil {
			return Message{}, fmt.Errorf("wire: decode array frame: %w", err)
		}
		return Message{
			JoinRef: rawToString(arr[0]),
			Ref:     rawToString(arr[1]),
			Topic:   rawToString(arr[2]),
			Event:   rawToString(arr[3]),
			Payload: arr[4],
		}, nil
	}

	var obj objectFrame
	if err := json.Unmarshal(data, &obj); err != nil {
		return Message{}, fmt.Errorf("wire: decode object frame: %w", err)
	}
	return Message{
		JoinRef: rawToString(obj.JoinRef),
		Ref:     rawToString(obj.Ref),
		Topic:   obj.Topic,
		Event:   obj.Event,
		Payload: obj.Payload,
	}, nil
}

// ReplyPayload is the shape of a phx_reply payload.
type ReplyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// FrameEnvelope is the media_frame payload shape (spec §4.6, §6): binary
// frames travel as base64 inside a normal JSON text message, never as raw
// WebSocket binary frames, because the backend only accepts JSON.
type FrameEnvelope struct {
	Data        string `json:"data"`
	FrameType   string `json:"frame_type"`
	Codec       string `json:"codec"`
	TimestampMs int64  `json:"timestamp"`
	Size        int    `json:"size"`
}

// NewFrameEnvelope base64-encodes payload and records its decoded length in
// Size so that len(Data) == 4*ceil(size/3), the invariant §8 checks.
func NewFrameEnvelope(payload []byte, isKeyframe bool, codec string, timestampMs int64) FrameEnvelope {
	frameType := FrameTypeP
	if isKeyframe {
		frameType = FrameTypeIDR
	}
	return FrameEnvelope{
		Data:        base64.StdEncoding.EncodeToString(payload),
		FrameType:   frameType,
		Codec:       codec,
		TimestampMs: timestampMs,
		Size:        len(payload),
	}
}

// Decode returns the original bitstream, erroring if the base64 payload's
// decoded length does not match the declared Size.
func (e FrameEnvelope) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("wire: decode frame envelope: %w", err)
	}
	if len(raw) != e.Size {
		return nil, fmt.Errorf("wire: frame envelope size mismatch: declared %d, decoded %d", e.Size, len(raw))
	}
	return raw, nil
}

// MediaMetadata is the media_metadata payload shape.
type MediaMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
	Codec  string `json:"codec"`
}

// StartSessionPayload is the payload of an inbound start_session event.
type StartSessionPayload struct {
	SessionID string `json:"session_id"`
}

func jsonStringOrNull(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(quote(s))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// join_ref/ref may arrive as bare numbers on some backend versions.
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func skipWhitespace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
