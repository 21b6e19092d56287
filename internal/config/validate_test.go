package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredInvalidDeviceIDIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DeviceID = "!!"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid device_id should be fatal")
	}
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "not a valid device identifier") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected device_id validation error in fatals")
	}
}

func TestValidateTieredInvalidURLSchemeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ServerURL = "ftp://example.com"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid URL scheme should be fatal")
	}
}

func TestValidateTieredControlCharsInTokenIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DeviceToken = "token\x00with\x01control"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control chars in token should be fatal")
	}
}

func TestValidateTieredIntervalClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.HeartbeatIntervalSeconds = 1 // below minimum 5
	result := cfg.ValidateTiered()

	if result.HasFatals() {
		t.Fatalf("clamped interval should be warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for clamped interval")
	}
	if cfg.HeartbeatIntervalSeconds != 5 {
		t.Fatalf("HeartbeatIntervalSeconds = %d, want 5 (clamped)", cfg.HeartbeatIntervalSeconds)
	}
}

func TestValidateTieredHighIntervalClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.HeartbeatIntervalSeconds = 9999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped interval should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.HeartbeatIntervalSeconds != 300 {
		t.Fatalf("HeartbeatIntervalSeconds = %d, want 300", cfg.HeartbeatIntervalSeconds)
	}
}

func TestValidateTieredCaptureDimensionClamping(t *testing.T) {
	cfg := Default()
	cfg.CaptureMaxWidth = 1
	cfg.CaptureMaxHeight = 99999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped capture dims should be warning: %v", result.Fatals)
	}
	if cfg.CaptureMaxWidth != 160 {
		t.Fatalf("CaptureMaxWidth = %d, want 160", cfg.CaptureMaxWidth)
	}
	if cfg.CaptureMaxHeight != 2160 {
		t.Fatalf("CaptureMaxHeight = %d, want 2160", cfg.CaptureMaxHeight)
	}
}

func TestValidateTieredFrameBufferCapacityClamping(t *testing.T) {
	cfg := Default()
	cfg.FrameBufferCapacity = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped frame_buffer_capacity should be warning: %v", result.Fatals)
	}
	if cfg.FrameBufferCapacity != 1 {
		t.Fatalf("FrameBufferCapacity = %d, want 1", cfg.FrameBufferCapacity)
	}
}

func TestValidateTieredBitrateClamping(t *testing.T) {
	cfg := Default()
	cfg.PrimaryBitrateBps = 1
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped bitrate should be warning: %v", result.Fatals)
	}
	if cfg.PrimaryBitrateBps != 100_000 {
		t.Fatalf("PrimaryBitrateBps = %d, want 100000", cfg.PrimaryBitrateBps)
	}
}

func TestValidateTieredFallbackFPSClamping(t *testing.T) {
	cfg := Default()
	cfg.FallbackFPS = 30
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fallback_fps should be warning: %v", result.Fatals)
	}
	if cfg.FallbackFPS != 5 {
		t.Fatalf("FallbackFPS = %d, want 5 (fallback ceiling)", cfg.FallbackFPS)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.ServerURL = "ftp://bad"         // fatal
	cfg.LogFormat = "xml"               // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	cfg.DeviceID = "AAAA-BBBB-CCCC"
	cfg.ServerURL = "wss://example.com"
	cfg.DeviceToken = "clean-token"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}
