package eventhub

import (
	"github.com/inputhub/eventhub/internal/device"
	"github.com/inputhub/eventhub/internal/evcode"
)

// LedCode is an abstract indicator identifier (spec.md §4.9 / glossary
// "LED code"), translated per-device to a kernel LED index.
type LedCode int

const (
	LedNumLock LedCode = iota
	LedCapsLock
	LedScrollLock
	LedCompose
	LedKana
	LedPlayer1
	LedPlayer2
	LedPlayer3
	LedPlayer4
)

// standardLed maps the non-player abstract codes directly to their
// kernel LED index, which the kernel itself keeps stable across
// devices (LED_NUML, LED_CAPSL, ... are fixed input-event-codes.h values).
var standardLed = map[LedCode]uint16{
	LedNumLock:    evcode.LED_NUML,
	LedCapsLock:   evcode.LED_CAPSL,
	LedScrollLock: evcode.LED_SCROLLL,
	LedCompose:    evcode.LED_COMPOSE,
	LedKana:       evcode.LED_KANA,
}

// resolveLed translates code to rec's physical LED bit, scanning the
// vendor range above LED_KANA for player-indicator codes in ascending
// order of advertised support (spec.md §4.9: "a per-device LED
// table... no-op if not supported").
func resolveLed(rec *device.Record, code LedCode) (uint16, bool) {
	if phys, ok := overrideLed(rec, code); ok {
		return phys, rec.LedBits.Test(int(phys))
	}

	if phys, ok := standardLed[code]; ok {
		return phys, rec.LedBits.Test(int(phys))
	}

	idx := int(code - LedPlayer1)
	if idx < 0 {
		return 0, false
	}
	found := -1
	for b := int(evcode.LED_KANA) + 1; b < rec.LedBits.Len(); b++ {
		if rec.LedBits.Test(b) {
			found++
			if found == idx {
				return uint16(b), true
			}
		}
	}
	return 0, false
}

// overrideLed consults the device's auxiliary configuration file
// (internal/devconfig) for a per-device LED table override, which
// takes precedence over the default kernel-index assumption.
func overrideLed(rec *device.Record, code LedCode) (uint16, bool) {
	ov := rec.LedOverride
	switch code {
	case LedNumLock:
		if ov.NumLock != nil {
			return *ov.NumLock, true
		}
	case LedCapsLock:
		if ov.CapsLock != nil {
			return *ov.CapsLock, true
		}
	case LedScrollLock:
		if ov.ScrollLock != nil {
			return *ov.ScrollLock, true
		}
	default:
		idx := int(code - LedPlayer1)
		if idx >= 0 && idx < len(ov.Player) {
			return ov.Player[idx], true
		}
	}
	return 0, false
}

// syncLedState primes rec.LedState from a direct EVIOCGLED query the
// first time it's consulted since the fd was (re)opened, mirroring
// syncKeyState/syncSwState in state.go.
func (h *Hub) syncLedState(rec *device.Record) {
	if rec.LedStateSynced || rec.FD < 0 {
		return
	}
	live, err := h.io.DeviceLedState(rec.FD, rec.LedBits.Len())
	if err != nil {
		return
	}
	rec.LedState = live
	rec.LedStateSynced = true
}

// SetLED sets or clears an abstract LED indicator on deviceID. A
// device that doesn't advertise the corresponding physical LED is a
// no-op, not an error (spec.md §4.9). Already being in the requested
// state is also a no-op, tracked via the same LedState mirror the
// kernel query primes.
func (h *Hub) SetLED(deviceID int, code LedCode, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok {
		return newErr(KindNotFound, "set_led", nil)
	}
	phys, ok := resolveLed(rec, code)
	if !ok {
		return nil
	}
	h.syncLedState(rec)
	if rec.LedState.Test(int(phys)) == on {
		return nil
	}
	if err := h.io.SetLED(rec.FD, phys, on); err != nil {
		return newErr(KindIoError, "set_led", err)
	}
	rec.LedState.Set(int(phys), on)
	return nil
}

// rumbleStrong/WeakMagnitude are the fixed waveform the hub uploads;
// spec.md §4.9 only asks for a single waveform upload/cancel, not a
// caller-supplied effect description, so a symmetric full-strength
// buzz is the one waveform in use.
const (
	rumbleStrongMagnitude = 0xffff
	rumbleWeakMagnitude   = 0xffff
)

// Vibrate plays a rumble effect on deviceID for durationMs. If a prior
// effect is already playing, it is cancelled first (spec.md §4.9, §8
// scenario S3).
func (h *Hub) Vibrate(deviceID int, durationMs uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok {
		return newErr(KindNotFound, "vibrate", nil)
	}
	if !rec.Classes.Has(ClassVibrator) {
		return newErr(KindUnsupported, "vibrate", nil)
	}

	if rec.Vibrator.Playing {
		h.stopVibrator(rec)
	}

	effectID, err := h.io.UploadRumbleEffect(rec.FD, rumbleStrongMagnitude, rumbleWeakMagnitude, durationMs)
	if err != nil {
		return newErr(KindIoError, "vibrate", err)
	}
	if err := h.io.PlayEffect(rec.FD, effectID, true); err != nil {
		h.io.EraseEffect(rec.FD, effectID)
		return newErr(KindIoError, "vibrate", err)
	}
	rec.Vibrator.EffectID = effectID
	rec.Vibrator.Playing = true
	return nil
}

// CancelVibrate stops and erases any playing effect on deviceID. A
// second call with nothing playing is a no-op (spec.md §8 scenario S3).
func (h *Hub) CancelVibrate(deviceID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok {
		return newErr(KindNotFound, "cancel_vibrate", nil)
	}
	if !rec.Vibrator.Playing {
		return nil
	}
	h.stopVibrator(rec)
	return nil
}

func (h *Hub) stopVibrator(rec *device.Record) {
	h.io.PlayEffect(rec.FD, rec.Vibrator.EffectID, false)
	h.io.EraseEffect(rec.FD, rec.Vibrator.EffectID)
	rec.Vibrator.EffectID = -1
	rec.Vibrator.Playing = false
}
