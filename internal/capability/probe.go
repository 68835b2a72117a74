// Package capability classifies a freshly opened device descriptor
// into the DeviceClass set described in spec.md §3/§4.3, by reading
// its capability bitmasks and property bits through hostio.HostIO.
// Classification happens once, at open; spec.md §9 "Open questions"
// explicitly chooses to snapshot at open and ignore capability drift
// until the device is closed and reopened.
package capability

import (
	"github.com/inputhub/eventhub/internal/bitmask"
	"github.com/inputhub/eventhub/internal/evcode"
	"github.com/inputhub/eventhub/internal/hostio"
)

// Class is one additive capability bit from spec.md §3.
type Class uint32

const (
	Keyboard Class = 1 << iota
	AlphaKey
	Touch
	Cursor
	TouchMt
	Dpad
	Gamepad
	Switch
	Joystick
	Vibrator
	Mic
	ExternalStylus
	RotaryEncoder
	Virtual
	External
)

var classNames = []struct {
	bit  Class
	name string
}{
	{Keyboard, "Keyboard"}, {AlphaKey, "AlphaKey"}, {Touch, "Touch"},
	{Cursor, "Cursor"}, {TouchMt, "TouchMt"}, {Dpad, "Dpad"},
	{Gamepad, "Gamepad"}, {Switch, "Switch"}, {Joystick, "Joystick"},
	{Vibrator, "Vibrator"}, {Mic, "Mic"}, {ExternalStylus, "ExternalStylus"},
	{RotaryEncoder, "RotaryEncoder"}, {Virtual, "Virtual"}, {External, "External"},
}

// Set is the classification result for one device: an additive
// combination of Class bits. Has the documented implications applied
// (Dpad/Gamepad imply Keyboard, Joystick implies Gamepad) before it is
// ever returned from Probe.
type Set Class

// Has reports whether c is included in s.
func (s Set) Has(c Class) bool { return Class(s)&c != 0 }

// Empty reports whether no class is set — spec.md §8 invariant 3 uses
// this to mean "no device is currently open at id".
func (s Set) Empty() bool { return s == 0 }

// String lists the set's class names, stable order, for dump() and logs.
func (s Set) String() string {
	out := ""
	for _, cn := range classNames {
		if Class(s)&cn.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += cn.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

func (s *Set) add(c Class) { *s |= Set(c) }

// Result is everything CapabilityProbe derives from a live descriptor:
// the class set plus every per-domain capability bitmask the hub will
// need for the device's lifetime (state queries, LED table sizing, FF
// availability).
type Result struct {
	Classes  Set
	KeyBits  *bitmask.BitMask
	AbsBits  *bitmask.BitMask
	RelBits  *bitmask.BitMask
	SwBits   *bitmask.BitMask
	LedBits  *bitmask.BitMask
	FfBits   *bitmask.BitMask
	PropBits *bitmask.BitMask
	HasLED   bool
}

// Probe runs spec.md §4.3 rules 1-6 against fd. The external-bus
// heuristic (rule 6) uses the device's bus type; name is accepted but
// not used. It never mutates anything beyond issuing read-only ioctls
// through io.
func Probe(io hostio.HostIO, fd int, name string) (Result, error) {
	var res Result
	var err error

	if res.KeyBits, err = io.DeviceCodeBits(fd, evcode.EV_KEY, evcode.KeyMax); err != nil {
		return Result{}, err
	}
	if res.AbsBits, err = io.DeviceCodeBits(fd, evcode.EV_ABS, evcode.AbsMax); err != nil {
		return Result{}, err
	}
	if res.RelBits, err = io.DeviceCodeBits(fd, evcode.EV_REL, evcode.RelMax); err != nil {
		return Result{}, err
	}
	if res.SwBits, err = io.DeviceCodeBits(fd, evcode.EV_SW, evcode.SwMax); err != nil {
		return Result{}, err
	}
	if res.LedBits, err = io.DeviceCodeBits(fd, evcode.EV_LED, evcode.LedMax); err != nil {
		return Result{}, err
	}
	if res.FfBits, err = io.DeviceCodeBits(fd, evcode.EV_FF, evcode.FfMax); err != nil {
		return Result{}, err
	}
	if res.PropBits, err = io.DeviceProps(fd); err != nil {
		return Result{}, err
	}

	// Rule 2: Keyboard / AlphaKey.
	if hasKeyboardRange(res.KeyBits) {
		res.Classes.add(Keyboard)
	}
	if hasAlphaKey(res.KeyBits) {
		res.Classes.add(AlphaKey)
	}

	// Rule 3: Touch / TouchMt / joystick-like / Cursor.
	hasAbsXY, _ := res.AbsBits.Any(int(evcode.ABS_X), int(evcode.ABS_Y)+1)
	direct := res.PropBits.Test(int(evcode.INPUT_PROP_DIRECT))
	hasMTSlot := res.AbsBits.Test(int(evcode.ABS_MT_SLOT))
	hasRelXY, _ := res.RelBits.Any(int(evcode.REL_X), int(evcode.REL_Y)+1)
	hasMouseButtons, _ := res.KeyBits.Any(int(evcode.BTN_MOUSE), int(evcode.BTN_JOYSTICK))

	switch {
	case direct && hasAbsXY && hasMTSlot:
		res.Classes.add(Touch)
		res.Classes.add(TouchMt)
	case direct && hasAbsXY:
		res.Classes.add(Touch)
	case hasAbsXY && (hasRelXY || hasMouseButtons):
		res.Classes.add(Cursor)
	case hasAbsXY:
		res.Classes.add(Joystick)
	}
	if hasRelXY && !hasAbsXY {
		res.Classes.add(Cursor)
	}

	// Rule 4: Dpad / Gamepad / Joystick derivations.
	hasDpadAxes, _ := res.AbsBits.Any(int(evcode.ABS_HAT0X), int(evcode.ABS_HAT0Y)+1)
	hasGamepadButtons, _ := res.KeyBits.Any(int(evcode.BTN_GAMEPAD), int(evcode.BTN_THUMBR)+1)
	hasJoystickButtons, _ := res.KeyBits.Any(int(evcode.BTN_JOYSTICK), int(evcode.BTN_GAMEPAD))

	if hasDpadAxes {
		res.Classes.add(Dpad)
		res.Classes.add(Keyboard)
	}
	if hasGamepadButtons {
		res.Classes.add(Gamepad)
		res.Classes.add(Keyboard)
	}
	if hasJoystickButtons || res.Classes.Has(Joystick) {
		res.Classes.add(Joystick)
		res.Classes.add(Gamepad)
		res.Classes.add(Keyboard)
	}

	// Switch: any switch bit present at all.
	if anySw, _ := res.SwBits.Any(0, evcode.SwMax); anySw {
		res.Classes.add(Switch)
	}

	// Rule 5: Vibrator / LED.
	if res.FfBits.Test(int(evcode.FF_RUMBLE)) {
		res.Classes.add(Vibrator)
	}
	if anyLed, _ := res.LedBits.Any(0, evcode.LedMax); anyLed {
		res.HasLED = true
	}

	// Rule 6: external-bus heuristic. USB and Bluetooth HID report as
	// external peripherals more often than not; a built-in platform
	// device reports over the internal "host" pseudo-bus (bustype 0)
	// or I2C/SPI ranges the kernel reserves for embedded controllers.
	if id, err := io.DeviceID(fd); err == nil {
		if isExternalBus(id.Bus) {
			res.Classes.add(External)
		}
	}
	_ = name // reserved for future name-based overrides; none needed yet.

	return res, nil
}

func hasKeyboardRange(keyBits *bitmask.BitMask) bool {
	if low, _ := keyBits.Any(0, int(evcode.BTN_MISC)); low {
		return true
	}
	any, _ := keyBits.Any(int(evcode.BTN_MISC), evcode.KeyMax)
	return any
}

func hasAlphaKey(keyBits *bitmask.BitMask) bool {
	for code := 0; code < evcode.KeyMax; code++ {
		if evcode.IsAlphaKeyCode(uint16(code)) && keyBits.Test(code) {
			return true
		}
	}
	return false
}

// busUSB, busBluetooth, busVirtual mirror the bustype constants from
// input.h (BUS_USB=0x03, BUS_BLUETOOTH=0x05, BUS_VIRTUAL=0x06).
const (
	busUSB       = 0x03
	busBluetooth = 0x05
	busVirtual   = 0x06
)

func isExternalBus(bus uint16) bool {
	return bus == busUSB || bus == busBluetooth
}

// AbsAxisOwner resolves an absolute axis claimed by more than one
// class to its owning class, by the fixed priority spec.md §4.3
// documents: TouchMt > Touch > Joystick > Cursor.
func AbsAxisOwner(classes Set) Class {
	switch {
	case classes.Has(TouchMt):
		return TouchMt
	case classes.Has(Touch):
		return Touch
	case classes.Has(Joystick):
		return Joystick
	case classes.Has(Cursor):
		return Cursor
	default:
		return 0
	}
}
