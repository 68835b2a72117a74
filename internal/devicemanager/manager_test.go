package devicemanager

import (
	"testing"

	"github.com/inputhub/eventhub/internal/bitmask"
	"github.com/inputhub/eventhub/internal/config"
	"github.com/inputhub/eventhub/internal/controllerpool"
	"github.com/inputhub/eventhub/internal/epollpump"
	"github.com/inputhub/eventhub/internal/evcode"
	"github.com/inputhub/eventhub/internal/hostio"
	"github.com/inputhub/eventhub/internal/videoregistry"
)

// pathAwareFake wraps hostio.Fake so tests can call OpenDevice with a
// path the way devicemanager does, instead of AddDevice's fd. The Fake
// itself deliberately doesn't interpret paths (see fake.go); this is
// the per-test bookkeeping its own doc comment asks callers to supply.
type pathAwareFake struct {
	*hostio.Fake
	byPath map[string]int
}

func newPathAwareFake() *pathAwareFake {
	return &pathAwareFake{Fake: hostio.NewFake(), byPath: make(map[string]int)}
}

func (f *pathAwareFake) register(path string, dev *hostio.FakeDevice) int {
	fd := f.AddDevice(dev)
	f.byPath[path] = fd
	return fd
}

func (f *pathAwareFake) OpenDevice(path string) (int, error) {
	fd, ok := f.byPath[path]
	if !ok {
		return -1, errNotScripted(path)
	}
	return fd, nil
}

func errNotScripted(path string) error {
	return &notScriptedErr{path}
}

type notScriptedErr struct{ path string }

func (e *notScriptedErr) Error() string { return "devicemanager test: " + e.path + " not scripted" }

func newTestManager(t *testing.T, io hostio.HostIO, cfg *config.Config) *Manager {
	t.Helper()
	pump, err := epollpump.New(io, nil, 0)
	if err != nil {
		t.Fatalf("epollpump.New: %v", err)
	}
	pool := controllerpool.New(nil)
	videoReg := videoregistry.New()
	return New(io, pump, cfg, pool, nil, videoReg, nil, nil)
}

func keyboardDevice() *hostio.FakeDevice {
	keyBits := bitmask.New(evcode.KeyMax)
	keyBits.Set(int(evcode.KEY_ESC), true)
	keyBits.Set(16, true) // alpha
	return &hostio.FakeDevice{
		Name:     "Internal Keyboard",
		ID:       hostio.DeviceIdent{Bus: 0x06}, // not USB/BT: built-in
		CodeBits: map[uint16]*bitmask.BitMask{evcode.EV_KEY: keyBits},
	}
}

func gamepadDevice() *hostio.FakeDevice {
	keyBits := bitmask.New(evcode.KeyMax)
	keyBits.Set(int(evcode.BTN_GAMEPAD), true)
	return &hostio.FakeDevice{
		Name:     "Acme Gamepad Controller",
		ID:       hostio.DeviceIdent{Bus: 0x03},
		CodeBits: map[uint16]*bitmask.BitMask{evcode.EV_KEY: keyBits},
	}
}

func TestOpenDeviceAssignsIdAndBuiltinKeyboard(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()

	m := newTestManager(t, f, cfg)
	rec, err := m.OpenDevice("/dev/input/event0")
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	if rec.InternalID() != 1 {
		t.Fatalf("first opened device should get internal id 1, got %d", rec.InternalID())
	}
	if m.BuiltinKeyboardID() != 1 {
		t.Fatalf("BuiltinKeyboardID = %d; want 1", m.BuiltinKeyboardID())
	}
}

func TestOpenDeviceExcludedIsSilentNoop(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()
	cfg.ExcludedDevices = []string{"*event0"}

	m := newTestManager(t, f, cfg)
	rec, err := m.OpenDevice("/dev/input/event0")
	if err != nil || rec != nil {
		t.Fatalf("OpenDevice of excluded path = %v, %v; want nil, nil", rec, err)
	}
}

func TestOpenDeviceAlreadyOpenIsNoop(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()

	m := newTestManager(t, f, cfg)
	if _, err := m.OpenDevice("/dev/input/event0"); err != nil {
		t.Fatalf("first OpenDevice: %v", err)
	}
	rec, err := m.OpenDevice("/dev/input/event0")
	if err != nil || rec != nil {
		t.Fatalf("second OpenDevice of the same path = %v, %v; want nil, nil", rec, err)
	}
}

func TestOpenDeviceAssignsControllerNumberForGamepad(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", gamepadDevice())
	f.register("/dev/input/event1", gamepadDevice())
	cfg := config.DefaultConfig()

	m := newTestManager(t, f, cfg)
	rec0, _ := m.OpenDevice("/dev/input/event0")
	rec1, _ := m.OpenDevice("/dev/input/event1")
	if rec0.ControllerNumber != 1 || rec1.ControllerNumber != 2 {
		t.Fatalf("controller numbers = %d, %d; want 1, 2", rec0.ControllerNumber, rec1.ControllerNumber)
	}
}

func TestCloseRecyclesControllerNumber(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", gamepadDevice())
	f.register("/dev/input/event1", gamepadDevice())
	cfg := config.DefaultConfig()

	m := newTestManager(t, f, cfg)
	rec0, _ := m.OpenDevice("/dev/input/event0")
	m.Close(rec0.InternalID())

	rec2, err := m.OpenDevice("/dev/input/event1")
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	if rec2.ControllerNumber != 1 {
		t.Fatalf("closing the first gamepad should free controller number 1 for reuse, got %d", rec2.ControllerNumber)
	}
}

func TestCloseByPathIsNoopWhenNotOpen(t *testing.T) {
	f := newPathAwareFake()
	cfg := config.DefaultConfig()
	m := newTestManager(t, f, cfg)
	m.CloseByPath("/dev/input/event9") // must not panic
}

func TestEnableDisable(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()
	m := newTestManager(t, f, cfg)

	rec, _ := m.OpenDevice("/dev/input/event0")
	id := rec.InternalID()

	if err := m.Disable(id); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if rec.IsEnabled() {
		t.Fatalf("Disable should clear Enabled")
	}
	if err := m.Disable(id); err != ErrAlreadyInState {
		t.Fatalf("second Disable = %v; want ErrAlreadyInState", err)
	}

	if err := m.Enable(id); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !rec.IsEnabled() {
		t.Fatalf("Enable should set Enabled")
	}
	if err := m.Enable(id); err != ErrAlreadyInState {
		t.Fatalf("second Enable = %v; want ErrAlreadyInState", err)
	}
}

func TestDescriptorPreservedAcrossReopen(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()
	m := newTestManager(t, f, cfg)

	rec, err := m.OpenDevice("/dev/input/event0")
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	original := rec.Descriptor

	m.Close(rec.InternalID())
	reopened, err := m.OpenDevice("/dev/input/event0")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Descriptor != original {
		t.Fatalf("descriptor after close+reopen = %q; want the original %q preserved", reopened.Descriptor, original)
	}
}

func TestDisableThenCloseDoesNotDoubleCloseFD(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()
	m := newTestManager(t, f, cfg)

	rec, _ := m.OpenDevice("/dev/input/event0")
	if err := m.Disable(rec.InternalID()); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if rec.FD != -1 {
		t.Fatalf("Disable should reset FD to -1, got %d", rec.FD)
	}
	// Must not attempt to close the already-closed fd a second time.
	m.Close(rec.InternalID())
}

func TestGetByFDAndByPath(t *testing.T) {
	f := newPathAwareFake()
	f.register("/dev/input/event0", keyboardDevice())
	cfg := config.DefaultConfig()
	m := newTestManager(t, f, cfg)

	rec, _ := m.OpenDevice("/dev/input/event0")

	if got, ok := m.GetByPath("/dev/input/event0"); !ok || got != rec {
		t.Fatalf("GetByPath mismatch")
	}
	if got, ok := m.GetByFD(rec.FD); !ok || got != rec {
		t.Fatalf("GetByFD mismatch")
	}
	m.Close(rec.InternalID())
	if _, ok := m.GetByFD(rec.FD); ok {
		t.Fatalf("GetByFD should miss after close")
	}
}
