package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var deviceIDRegex = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z-]{3,63}$`)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates validation problems that must block startup
// (Fatals) from ones that are safe to clamp and continue past (Warnings),
// matching the tiered style of the teacher's Config.Validate.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal validation error was recorded.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings as a single slice, for
// callers that want to log or display everything found in one pass.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Malformed identity or
// endpoint fields are fatal since the agent cannot safely run with them.
// Out-of-range tunables are clamped to a safe value and reported as
// warnings so a bad deployment doesn't stop the agent from streaming at all.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.DeviceID != "" && !deviceIDRegex.MatchString(c.DeviceID) {
		r.Fatals = append(r.Fatals, fmt.Errorf("device_id %q is not a valid device identifier", c.DeviceID))
	}

	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("server_url %q is not a valid URL: %w", c.ServerURL, err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			r.Fatals = append(r.Fatals, fmt.Errorf("server_url scheme must be ws or wss, got %q", u.Scheme))
		}
	}

	if c.DeviceToken != "" {
		for _, rn := range c.DeviceToken {
			if unicode.IsControl(rn) {
				r.Fatals = append(r.Fatals, fmt.Errorf("device_token contains control characters"))
				break
			}
		}
	}

	if c.CaptureMaxWidth < 160 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture_max_width %d is below minimum 160, clamping", c.CaptureMaxWidth))
		c.CaptureMaxWidth = 160
	} else if c.CaptureMaxWidth > 3840 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture_max_width %d exceeds maximum 3840, clamping", c.CaptureMaxWidth))
		c.CaptureMaxWidth = 3840
	}
	if c.CaptureMaxWidth%2 != 0 {
		c.CaptureMaxWidth--
	}

	if c.CaptureMaxHeight < 120 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture_max_height %d is below minimum 120, clamping", c.CaptureMaxHeight))
		c.CaptureMaxHeight = 120
	} else if c.CaptureMaxHeight > 2160 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture_max_height %d exceeds maximum 2160, clamping", c.CaptureMaxHeight))
		c.CaptureMaxHeight = 2160
	}
	if c.CaptureMaxHeight%2 != 0 {
		c.CaptureMaxHeight--
	}

	if c.FrameBufferCapacity < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("frame_buffer_capacity %d is below minimum 1, clamping", c.FrameBufferCapacity))
		c.FrameBufferCapacity = 1
	} else if c.FrameBufferCapacity > 500 {
		r.Warnings = append(r.Warnings, fmt.Errorf("frame_buffer_capacity %d exceeds maximum 500, clamping", c.FrameBufferCapacity))
		c.FrameBufferCapacity = 500
	}

	if c.PrimaryFPS < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("primary_fps %d is below minimum 1, clamping", c.PrimaryFPS))
		c.PrimaryFPS = 1
	} else if c.PrimaryFPS > 60 {
		r.Warnings = append(r.Warnings, fmt.Errorf("primary_fps %d exceeds maximum 60, clamping", c.PrimaryFPS))
		c.PrimaryFPS = 60
	}

	if c.PrimaryBitrateBps < 100_000 {
		r.Warnings = append(r.Warnings, fmt.Errorf("primary_bitrate_bps %d is below minimum 100000, clamping", c.PrimaryBitrateBps))
		c.PrimaryBitrateBps = 100_000
	} else if c.PrimaryBitrateBps > 20_000_000 {
		r.Warnings = append(r.Warnings, fmt.Errorf("primary_bitrate_bps %d exceeds maximum 20000000, clamping", c.PrimaryBitrateBps))
		c.PrimaryBitrateBps = 20_000_000
	}

	if c.FallbackFPS < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("fallback_fps %d is below minimum 1, clamping", c.FallbackFPS))
		c.FallbackFPS = 1
	} else if c.FallbackFPS > 5 {
		r.Warnings = append(r.Warnings, fmt.Errorf("fallback_fps %d exceeds the fallback ceiling of 5, clamping", c.FallbackFPS))
		c.FallbackFPS = 5
	}

	if c.FallbackQuality < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("fallback_quality %d is below minimum 1, clamping", c.FallbackQuality))
		c.FallbackQuality = 1
	} else if c.FallbackQuality > 100 {
		r.Warnings = append(r.Warnings, fmt.Errorf("fallback_quality %d exceeds maximum 100, clamping", c.FallbackQuality))
		c.FallbackQuality = 100
	}

	if c.HeartbeatIntervalSeconds < 5 {
		r.Warnings = append(r.Warnings, fmt.Errorf("heartbeat_interval_seconds %d is below minimum 5, clamping", c.HeartbeatIntervalSeconds))
		c.HeartbeatIntervalSeconds = 5
	} else if c.HeartbeatIntervalSeconds > 300 {
		r.Warnings = append(r.Warnings, fmt.Errorf("heartbeat_interval_seconds %d exceeds maximum 300, clamping", c.HeartbeatIntervalSeconds))
		c.HeartbeatIntervalSeconds = 300
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}
