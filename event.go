// Package eventhub is the kernel-facing core of a Linux input
// subsystem: it aggregates raw evdev traffic from every attached
// human-interface device into one blocking, timestamped event stream,
// plus a query surface over device capability and state (spec.md §1).
package eventhub

import "github.com/inputhub/eventhub/internal/evcode"

// RawEvent is one record delivered through GetEvents: either a decoded
// evdev tuple or one of the synthetic lifecycle events (spec.md §3).
type RawEvent struct {
	TimestampNs int64
	DeviceID    int
	Type        uint16
	Code        uint16
	Value       int32
}

// Synthetic event type codes, re-exported from internal/evcode so
// callers never need to import it directly.
const (
	DeviceAdded        = evcode.DEVICE_ADDED
	DeviceRemoved      = evcode.DEVICE_REMOVED
	FinishedDeviceScan = evcode.FINISHED_DEVICE_SCAN
)

func syntheticEvent(typ uint16, deviceID int) RawEvent {
	return RawEvent{Type: typ, DeviceID: deviceID}
}
