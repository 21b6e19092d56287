package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("channel")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("connected", "url", "ws://localhost:4000/socket")

	out := buf.String()
	if strings.Contains(out, `msg="INFO connected`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, "msg=connected") {
		t.Fatalf("expected plain connected message, got: %s", out)
	}
	if !strings.Contains(out, "component=channel") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "url=ws://localhost:4000/socket") {
		t.Fatalf("expected url field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("channel")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithSessionAttachesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithSession(L("session"), "AAAA-BBBB", "sess-123")
	logger.Info("streaming started")

	out := buf.String()
	if !strings.Contains(out, "deviceId=AAAA-BBBB") {
		t.Fatalf("expected deviceId field, got: %s", out)
	}
	if !strings.Contains(out, "sessionId=sess-123") {
		t.Fatalf("expected sessionId field, got: %s", out)
	}
}
