// Package deviceid derives the stable per-device identifier used as the
// device_id path segment in both the control and media topic names (spec
// §6). Grounded on internal/collectors/hardware.go's use of
// gopsutil/v3/host for machine identity, narrowed to the one stable field
// this agent actually needs instead of the teacher's full hardware
// inventory.
package deviceid

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Resolve returns the platform's stable host identifier (a machine GUID on
// Windows, an IOPlatformUUID on macOS, the machine-id/DBus ID on Linux),
// normalized to uppercase so it matches the device_id format the signaling
// server expects. If overrideID is non-empty (the device_id from config,
// either set explicitly or persisted there by an earlier run), it is
// returned unchanged instead.
func Resolve(overrideID string) (string, error) {
	if overrideID != "" {
		return overrideID, nil
	}

	id, err := host.HostID()
	if err != nil {
		return "", fmt.Errorf("deviceid: resolve host id: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("deviceid: platform returned an empty host id")
	}

	return strings.ToUpper(id), nil
}
