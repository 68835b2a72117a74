package eventhub

import (
	"github.com/inputhub/eventhub/internal/capability"
	"github.com/inputhub/eventhub/internal/device"
	"github.com/inputhub/eventhub/internal/evcode"
)

// DeviceClass re-exports internal/capability's classification bits
// (spec.md §3 DeviceClass) so callers never need to import an
// internal package.
type DeviceClass = capability.Class

// DeviceClasses is an additive combination of DeviceClass bits.
type DeviceClasses = capability.Set

// The additive capability bits a device can carry (spec.md §3).
const (
	ClassKeyboard       = capability.Keyboard
	ClassAlphaKey       = capability.AlphaKey
	ClassTouch          = capability.Touch
	ClassCursor         = capability.Cursor
	ClassTouchMt        = capability.TouchMt
	ClassDpad           = capability.Dpad
	ClassGamepad        = capability.Gamepad
	ClassSwitch         = capability.Switch
	ClassJoystick       = capability.Joystick
	ClassVibrator       = capability.Vibrator
	ClassMic            = capability.Mic
	ClassExternalStylus = capability.ExternalStylus
	ClassRotaryEncoder  = capability.RotaryEncoder
	ClassVirtual        = capability.Virtual
	ClassExternal       = capability.External
)

// KeyState is the tri-state result of a key/switch state query
// (spec.md §4.8): UNKNOWN, UP, or DOWN.
type KeyState int

const (
	StateUnknown KeyState = iota
	StateUp
	StateDown
)

// GetDeviceClasses returns deviceID's current class set. An unknown or
// closed id returns the empty set (spec.md §8 invariant 3).
func (h *Hub) GetDeviceClasses(deviceID int) DeviceClasses {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok {
		return 0
	}
	return rec.Classes
}

// GetAbsAxisUsage resolves an axis claimed by more than one class to
// its owning class, by the fixed priority spec.md §4.3 documents.
func GetAbsAxisUsage(classes DeviceClasses) DeviceClass {
	return capability.AbsAxisOwner(classes)
}

// syncKeyState primes rec.KeyState from a direct EVIOCGKEY query the
// first time it's consulted since the fd was (re)opened — the mirror
// otherwise starts all-zero and only tracks edges seen after that
// point, misreporting a key already held at open time (spec.md §4.8:
// "prefer the cached mirror; on a miss they issue a direct ioctl").
func (h *Hub) syncKeyState(rec *device.Record) {
	if rec.KeyStateSynced || rec.FD < 0 {
		return
	}
	live, err := h.io.DeviceKeyState(rec.FD, rec.KeyBits.Len())
	if err != nil {
		return
	}
	rec.KeyState = live
	rec.KeyStateSynced = true
}

func (h *Hub) syncSwState(rec *device.Record) {
	if rec.SwStateSynced || rec.FD < 0 {
		return
	}
	live, err := h.io.DeviceSwState(rec.FD, rec.SwBits.Len())
	if err != nil {
		return
	}
	rec.SwState = live
	rec.SwStateSynced = true
}

// GetScanCodeState returns the raw per-device key state for scanCode
// before key-map translation (spec.md §4.8). It prefers the cached
// mirror; a disabled or missing device returns StateUnknown.
func (h *Hub) GetScanCodeState(deviceID int, scanCode uint16) KeyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok || !rec.IsEnabled() {
		return StateUnknown
	}
	if !rec.KeyBits.Test(int(scanCode)) {
		return StateUnknown
	}
	h.syncKeyState(rec)
	if rec.KeyState.Test(int(scanCode)) {
		return StateDown
	}
	return StateUp
}

// GetKeyCodeState resolves keyCode back to every scan code the
// device's key-map maps to it and returns StateDown if any of them is
// currently held (spec.md §4.8).
func (h *Hub) GetKeyCodeState(deviceID int, keyCode uint16) KeyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok || !rec.IsEnabled() {
		return StateUnknown
	}
	if rec.KeyMap == nil {
		return StateUnknown
	}
	h.syncKeyState(rec)
	any := false
	for code := 0; code < rec.KeyBits.Len(); code++ {
		if !rec.KeyBits.Test(code) {
			continue
		}
		mapped, err := rec.KeyMap.MapKey(uint16(code))
		if err != nil || mapped != keyCode {
			continue
		}
		any = true
		if rec.KeyState.Test(code) {
			return StateDown
		}
	}
	if any {
		return StateUp
	}
	return StateUnknown
}

// GetSwitchState returns the current state of switch code sw on
// deviceID (spec.md §4.8).
func (h *Hub) GetSwitchState(deviceID int, sw uint16) KeyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok || !rec.IsEnabled() {
		return StateUnknown
	}
	if !rec.SwBits.Test(int(sw)) {
		return StateUnknown
	}
	h.syncSwState(rec)
	if rec.SwState.Test(int(sw)) {
		return StateDown
	}
	return StateUp
}

// AxisValue is the result of GetAbsoluteAxisValue: Valid is false when
// the device is missing, disabled, or lacks the axis.
type AxisValue struct {
	Valid bool
	Value int32
}

// GetAbsoluteAxisValue issues a direct EVIOCGABS query for axis on
// deviceID (spec.md §4.8 — absolute axis values are not cached the
// way key/switch bits are, since the kernel already tracks a per-axis
// "last value" the hub would otherwise have to duplicate).
func (h *Hub) GetAbsoluteAxisValue(deviceID int, axis uint16) AxisValue {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok || !rec.IsEnabled() {
		return AxisValue{}
	}
	if !rec.AbsBits.Test(int(axis)) {
		return AxisValue{}
	}
	info, err := h.io.DeviceAbsInfo(rec.FD, axis)
	if err != nil || !info.Valid {
		return AxisValue{}
	}
	return AxisValue{Valid: true, Value: info.Value}
}

// MarkSupportedKeyCodes checks presence of each logical key code
// through the loaded key-map plus the kernel key bitmask (spec.md
// §4.8 mark_supported_key_codes), returning a same-length slice.
func (h *Hub) MarkSupportedKeyCodes(deviceID int, codes []uint16) []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bool, len(codes))
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok || rec.KeyMap == nil {
		return out
	}
	for scan := 0; scan < rec.KeyBits.Len(); scan++ {
		if !rec.KeyBits.Test(scan) {
			continue
		}
		mapped, err := rec.KeyMap.MapKey(uint16(scan))
		if err != nil {
			continue
		}
		for i, want := range codes {
			if mapped == want {
				out[i] = true
			}
		}
	}
	return out
}

// These blank references to evcode.EV_KEY / EV_SW document which event
// domains back these queries.
var (
	_ = evcode.EV_KEY
	_ = evcode.EV_SW
)
