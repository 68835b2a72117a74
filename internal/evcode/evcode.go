// Package evcode carries the subset of Linux evdev constants and ioctl
// request codes the Event Hub needs: event types, the evdev ioctl
// numbers, the key/abs/property codes CapabilityProbe tests against,
// and the raw wire shapes read back from the kernel. It does not
// attempt to be a complete transcription of input-event-codes.h; only
// codes spec.md names are present.
package evcode

import "github.com/inputhub/eventhub/internal/ioctlcode"

// Event types (struct input_event.type).
const (
	EV_SYN       uint16 = 0x00
	EV_KEY       uint16 = 0x01
	EV_REL       uint16 = 0x02
	EV_ABS       uint16 = 0x03
	EV_MSC       uint16 = 0x04
	EV_SW        uint16 = 0x05
	EV_LED       uint16 = 0x11
	EV_SND       uint16 = 0x12
	EV_REP       uint16 = 0x14
	EV_FF        uint16 = 0x15
	EV_PWR       uint16 = 0x16
	EV_FF_STATUS uint16 = 0x17
)

// Per-domain maximum code, one past the highest valid bit, used to
// size the BitMask for each EVIOCGBIT domain.
const (
	KeyMax = 0x2ff
	RelMax = 0x0f
	AbsMax = 0x3f
	SwMax  = 0x10
	LedMax = 0x0f
	FfMax  = 0x7f
	PropMax = 0x1f
)

// Key codes: those CapabilityProbe and the tests use, plus the common
// modifier keys.
const (
	KEY_ESC        uint16 = 1
	KEY_LEFTCTRL   uint16 = 29
	KEY_LEFTSHIFT  uint16 = 42
	KEY_RIGHTSHIFT uint16 = 54
	KEY_LEFTALT    uint16 = 56
	KEY_CAPSLOCK   uint16 = 58
	KEY_RIGHTCTRL  uint16 = 97
	KEY_RIGHTALT   uint16 = 100
	KEY_LEFTMETA   uint16 = 125
	KEY_RIGHTMETA  uint16 = 126
	BTN_MISC       uint16 = 0x100
	BTN_MOUSE      uint16 = 0x110
	BTN_LEFT       uint16 = 0x110
	BTN_RIGHT      uint16 = 0x111
	BTN_JOYSTICK   uint16 = 0x120
	BTN_GAMEPAD    uint16 = 0x130
	BTN_SOUTH      uint16 = 0x130
	BTN_THUMBL     uint16 = 0x13d
	BTN_THUMBR     uint16 = 0x13e
	BTN_WHEEL      uint16 = 0x150
	BTN_TOOL_PEN   uint16 = 0x140
	BTN_STYLUS     uint16 = 0x14b
	BTN_TRIGGER_HAPPY uint16 = 0x2c0
)

// alphaKeyCodes are the QWERTY letter-key scancodes (KEY_Q..KEY_P,
// KEY_A..KEY_L, KEY_Z..KEY_M); their presence in a device's key
// bitmask is what distinguishes a text keyboard from a button panel.
var alphaKeyCodes = func() map[uint16]struct{} {
	set := make(map[uint16]struct{})
	for _, c := range []uint16{16, 17, 18, 19, 20, 21, 22, 23, 24, 25} { // q..p
		set[c] = struct{}{}
	}
	for _, c := range []uint16{30, 31, 32, 33, 34, 35, 36, 37, 38} { // a..l
		set[c] = struct{}{}
	}
	for _, c := range []uint16{44, 45, 46, 47, 48, 49, 50} { // z..m
		set[c] = struct{}{}
	}
	return set
}()

// IsAlphaKeyCode reports whether code is one of the QWERTY letter keys.
func IsAlphaKeyCode(code uint16) bool {
	_, ok := alphaKeyCodes[code]
	return ok
}

// Relative and absolute axis codes.
const (
	REL_X uint16 = 0x00
	REL_Y uint16 = 0x01

	ABS_X             uint16 = 0x00
	ABS_Y             uint16 = 0x01
	ABS_HAT0X         uint16 = 0x10
	ABS_HAT0Y         uint16 = 0x11
	ABS_MT_SLOT       uint16 = 0x2f
	ABS_MT_TOUCH_MAJOR uint16 = 0x30
	ABS_MT_POSITION_X uint16 = 0x35
	ABS_MT_POSITION_Y uint16 = 0x36
	ABS_MT_TRACKING_ID uint16 = 0x39
)

// LED codes (abstract indicator identifiers, spec.md glossary).
const (
	LED_NUML    uint16 = 0x00
	LED_CAPSL   uint16 = 0x01
	LED_SCROLLL uint16 = 0x02
	LED_COMPOSE uint16 = 0x03
	LED_KANA    uint16 = 0x04
	// LED_PLAYER1 is not a standard kernel LED code. The hub's LED
	// table (resolveLed in the root package) does not consult it: it
	// assigns player indicators to the LED bits a device advertises
	// above LED_KANA, in ascending order.
	LED_PLAYER1 uint16 = 0x08
)

// Force-feedback effect types (EVIOCSFF upload payload, struct
// ff_effect.type). Only FF_RUMBLE is exercised: spec.md §4.3 rule 5
// only requires detecting vibration capability, and §4.9 only asks
// for a single waveform upload/cancel, not the full FF effect zoo.
const (
	FF_RUMBLE uint16 = 0x50
)

// Input properties (EVIOCGPROP bitmask, struct input_absinfo's sibling
// INPUT_PROP_* family).
const (
	INPUT_PROP_POINTER   uint16 = 0x00
	INPUT_PROP_DIRECT    uint16 = 0x01
	INPUT_PROP_BUTTONPAD uint16 = 0x02
)

// Synthetic RawEvent type codes (spec.md §3), encoded in a range well
// above EV_MAX (0x1f) so they can never collide with a real evdev
// type delivered from the kernel.
const (
	SyntheticBase        uint16 = 0x8000
	DEVICE_ADDED          = SyntheticBase + 0
	DEVICE_REMOVED        = SyntheticBase + 1
	FINISHED_DEVICE_SCAN  = SyntheticBase + 2
)

// evdev ioctl magic.
const evdevMagic = 'E'

var (
	EVIOCGVERSION = ioctlcode.IOR(evdevMagic, 0x01, int32(0))
	EVIOCGID      = ioctlcode.IOR(evdevMagic, 0x02, InputID{})
	EVIOCSFF      = ioctlcode.IOW(evdevMagic, 0x80, FFEffect{})
	EVIOCRMFF     = ioctlcode.IOW(evdevMagic, 0x81, int32(0))
)

// EVIOCGNAME, EVIOCGPHYS, EVIOCGUNIQ and EVIOCGPROP are variable-length
// reads; the caller supplies the destination buffer length.
func EVIOCGNAME(length uint) uint { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x06, length) }
func EVIOCGPHYS(length uint) uint { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x07, length) }
func EVIOCGUNIQ(length uint) uint { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x08, length) }
func EVIOCGPROP(length uint) uint { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x09, length) }
func EVIOCGKEY(length uint) uint  { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x18, length) }
func EVIOCGLED(length uint) uint  { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x19, length) }
func EVIOCGSW(length uint) uint   { return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x1b, length) }

// EVIOCGBIT returns the request code to read the capability bitmask
// for evType (0 means "supported event types" itself).
func EVIOCGBIT(evType uint16, length uint) uint {
	return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x20+uint(evType), length)
}

// EVIOCGABS returns the request code to read axis parameters for abs.
func EVIOCGABS(abs uint16) uint {
	return ioctlcode.IOSized(ioctlcode.DirRead, evdevMagic, 0x40+uint(abs), 24)
}

// InputID mirrors struct input_id (EVIOCGID payload).
type InputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// AbsInfo mirrors struct input_absinfo (EVIOCGABS payload).
type AbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// ffTrigger and ffReplay mirror the corresponding members of struct
// ff_effect.
type ffTrigger struct {
	Button   uint16
	Interval uint16
}

type ffReplay struct {
	Length uint16
	Delay  uint16
}

// ffRumble mirrors struct ff_rumble_effect, the only FF effect union
// member this hub ever uploads.
type ffRumble struct {
	StrongMagnitude uint16
	WeakMagnitude   uint16
}

// FFEffect mirrors struct ff_effect specialised to FF_RUMBLE; the
// kernel's real struct carries a tagged union sized to its largest
// member, which for rumble-only use collapses to ffRumble.
type FFEffect struct {
	Type      uint16
	ID        int16
	Direction uint16
	Trigger   ffTrigger
	Replay    ffReplay
	Rumble    ffRumble
}

// KernelEvent mirrors struct input_event on the 64-bit time_t ABI used
// by all current kernels: two 64-bit timestamp halves, then the
// type/code/value triple.
type KernelEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}
