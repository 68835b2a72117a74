package eventhub

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inputhub/eventhub/internal/evcode"
)

func openSingleKeyboard(t *testing.T) (*Hub, int) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "event0"), nil, 0644); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	f := newPathFake()
	f.register(filepath.Join(dir, "event0"), keyboardFakeDevice())
	h := newTestHub(t, f, dir)

	buf := make([]RawEvent, 8)
	h.GetEvents(0, buf, len(buf))
	return h, 0 // built-in keyboard remaps to external id 0
}

func TestGetScanCodeState(t *testing.T) {
	h, id := openSingleKeyboard(t)

	if got := h.GetScanCodeState(id, evcode.KEY_ESC); got != StateUp {
		t.Fatalf("GetScanCodeState before press = %v; want StateUp", got)
	}
	if got := h.GetScanCodeState(id, 9999); got != StateUnknown {
		t.Fatalf("GetScanCodeState for unsupported code = %v; want StateUnknown", got)
	}
}

func TestGetDeviceClassesUnknownIsEmpty(t *testing.T) {
	h, _ := openSingleKeyboard(t)
	if classes := h.GetDeviceClasses(555); !classes.Empty() {
		t.Fatalf("unknown device id should yield the empty class set")
	}
}

func TestGetAbsoluteAxisValueUnsupportedAxis(t *testing.T) {
	h, id := openSingleKeyboard(t)
	v := h.GetAbsoluteAxisValue(id, evcode.ABS_X)
	if v.Valid {
		t.Fatalf("a keyboard has no ABS_X axis; GetAbsoluteAxisValue should report Valid=false")
	}
}

func TestMarkSupportedKeyCodesWithoutKeymap(t *testing.T) {
	h, id := openSingleKeyboard(t)
	// No layout directory is populated, so Resolve's load fails and the
	// record's KeyMap has an unusable base/overlay — MarkSupportedKeyCodes
	// must still return a same-length slice, not panic.
	out := h.MarkSupportedKeyCodes(id, []uint16{1, 2, 3})
	if len(out) != 3 {
		t.Fatalf("MarkSupportedKeyCodes length = %d; want 3", len(out))
	}
}

func TestGetScanCodeStateSyncsHeldKeyAtOpen(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "event0"), nil, 0644); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	f := newPathFake()
	fd := f.register(filepath.Join(dir, "event0"), keyboardFakeDevice())
	// The key is already held when the device is opened, before any
	// edge event has been read into the record's own mirror.
	f.SetInitialKeyState(fd, int(evcode.KEY_ESC), true)

	h := newTestHub(t, f, dir)
	buf := make([]RawEvent, 8)
	h.GetEvents(0, buf, len(buf))

	if got := h.GetScanCodeState(0, evcode.KEY_ESC); got != StateDown {
		t.Fatalf("GetScanCodeState = %v; want StateDown (synced from the kernel on first query)", got)
	}
}

func TestGetSwitchStateUnsupported(t *testing.T) {
	h, id := openSingleKeyboard(t)
	if got := h.GetSwitchState(id, 0); got != StateUnknown {
		t.Fatalf("GetSwitchState on a keyboard with no switch bits = %v; want StateUnknown", got)
	}
}
