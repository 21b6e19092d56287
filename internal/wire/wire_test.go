package wire

import (
	"encoding/json"
	"testing"
)

func TestRoundTrip_ArrayFraming(t *testing.T) {
	m := Message{
		JoinRef: "1",
		Ref:     "1",
		Topic:   "device_rc:AAAA",
		Event:   EventPhxJoin,
		Payload: json.RawMessage(`{"token":"tok"}`),
	}
	enc, err := Encode(m, FramingArray)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[0] != '[' {
		t.Fatalf("expected array framing to start with '[', got %q", enc)
	}

	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.JoinRef != m.JoinRef || dec.Ref != m.Ref || dec.Topic != m.Topic || dec.Event != m.Event ||
		string(dec.Payload) != string(m.Payload) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", dec, m)
	}
}

func TestRoundTrip_ObjectFraming(t *testing.T) {
	m := Message{
		JoinRef: "2",
		Ref:     "5",
		Topic:   "device_media:AAAA:S1",
		Event:   EventMediaMetadata,
		Payload: json.RawMessage(`{"width":1280,"height":720,"fps":15,"codec":"h264"}`),
	}
	enc, err := Encode(m, FramingObject)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[0] != '{' {
		t.Fatalf("expected object framing to start with '{', got %q", enc)
	}

	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.JoinRef != m.JoinRef || dec.Ref != m.Ref || dec.Topic != m.Topic || dec.Event != m.Event {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", dec, m)
	}
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	raw := []byte(`{"join_ref":"1","ref":"2","topic":"t","event":"e","payload":{},"extra_field_from_newer_backend":123}`)
	dec, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode should tolerate unknown fields: %v", err)
	}
	if dec.Topic != "t" || dec.Event != "e" {
		t.Fatalf("decode mismatch: %+v", dec)
	}
}

func TestFrameEnvelope_SizeInvariant(t *testing.T) {
	payload := []byte("a 20-byte payload!!!")
	env := NewFrameEnvelope(payload, true, "h264", 12345)

	wantLen := 4 * ((env.Size + 2) / 3)
	if len(env.Data) != wantLen {
		t.Fatalf("base64 length = %d, want %d (4*ceil(size/3))", len(env.Data), wantLen)
	}
	if env.FrameType != FrameTypeIDR {
		t.Fatalf("frame_type = %q, want idr for a keyframe", env.FrameType)
	}

	decoded, err := env.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Fatalf("decoded payload mismatch: got %q, want %q", decoded, payload)
	}
}

func TestFrameEnvelope_PFrameTag(t *testing.T) {
	env := NewFrameEnvelope([]byte("x"), false, "mjpeg", 1)
	if env.FrameType != FrameTypeP {
		t.Fatalf("frame_type = %q, want p", env.FrameType)
	}
}

func TestDecode_AutoDetectsFraming(t *testing.T) {
	arr := []byte(`["1","1","topic","event",{}]`)
	if _, err := Decode(arr); err != nil {
		t.Fatalf("array auto-detect failed: %v", err)
	}
	obj := []byte(`  {"join_ref":"1","ref":"1","topic":"topic","event":"event","payload":{}}`)
	if _, err := Decode(obj); err != nil {
		t.Fatalf("object auto-detect with leading whitespace failed: %v", err)
	}
}
