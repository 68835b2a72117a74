package eventhub

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inputhub/eventhub/internal/bitmask"
	"github.com/inputhub/eventhub/internal/config"
	"github.com/inputhub/eventhub/internal/evcode"
	"github.com/inputhub/eventhub/internal/hostio"
	"github.com/inputhub/eventhub/internal/videoregistry"
)

// fakeVideoDevice is a minimal TouchVideoDevice that never associates
// with any input path, so it stays in the unattached registry — used
// to exercise Dump's unattached-video-device count.
type fakeVideoDevice struct {
	path string
	fd   int
}

func (v *fakeVideoDevice) Path() string                         { return v.path }
func (v *fakeVideoDevice) AssociatedInputPath() (string, error) { return "", os.ErrNotExist }
func (v *fakeVideoDevice) FD() int                              { return v.fd }
func (v *fakeVideoDevice) DrainFrames() [][]byte                { return nil }
func (v *fakeVideoDevice) PushFrame(frame []byte)               {}
func (v *fakeVideoDevice) Close() error                         { return nil }

type fakeVideoFactory struct{ fd int }

func (f *fakeVideoFactory) Open(path string) (videoregistry.TouchVideoDevice, error) {
	return &fakeVideoDevice{path: path, fd: f.fd}, nil
}

// pathFake wraps hostio.Fake so OpenDevice resolves a filesystem path
// to the fd a test registered for it, mirroring hostio.Fake's own
// doc comment instructing callers to script path->fd mappings themselves.
type pathFake struct {
	*hostio.Fake
	byPath map[string]int
}

func newPathFake() *pathFake {
	return &pathFake{Fake: hostio.NewFake(), byPath: make(map[string]int)}
}

func (f *pathFake) register(path string, dev *hostio.FakeDevice) int {
	fd := f.AddDevice(dev)
	f.byPath[path] = fd
	return fd
}

func (f *pathFake) OpenDevice(path string) (int, error) {
	fd, ok := f.byPath[path]
	if !ok {
		return -1, os.ErrNotExist
	}
	return fd, nil
}

func keyboardFakeDevice() *hostio.FakeDevice {
	keyBits := bitmask.New(evcode.KeyMax)
	keyBits.Set(int(evcode.KEY_ESC), true)
	keyBits.Set(16, true)
	return &hostio.FakeDevice{
		Name:     "Internal Keyboard",
		ID:       hostio.DeviceIdent{Bus: 0x06},
		CodeBits: map[uint16]*bitmask.BitMask{evcode.EV_KEY: keyBits},
	}
}

func newTestHub(t *testing.T, f hostio.HostIO, inputDir string) *Hub {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InputDirectory = inputDir
	cfg.VideoDirectory = inputDir
	h, err := New(f, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestGetEventsZeroCapacityReturnsImmediately(t *testing.T) {
	f := newPathFake()
	h := newTestHub(t, f, t.TempDir())
	buf := make([]RawEvent, 4)
	if n := h.GetEvents(0, buf, 0); n != 0 {
		t.Fatalf("GetEvents with capacity 0 = %d; want 0", n)
	}
}

func TestGetEventsColdStartScenario(t *testing.T) {
	// Scenario S1: input directory contains one keyboard device.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "event0"), nil, 0644); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	f := newPathFake()
	f.register(filepath.Join(dir, "event0"), keyboardFakeDevice())
	h := newTestHub(t, f, dir)

	buf := make([]RawEvent, 8)
	n := h.GetEvents(0, buf, len(buf))
	if n != 2 {
		t.Fatalf("cold start GetEvents returned %d events; want 2 (added + finished scan)", n)
	}
	if buf[0].Type != DeviceAdded {
		t.Fatalf("first event type = %v; want DeviceAdded", buf[0].Type)
	}
	if buf[1].Type != FinishedDeviceScan {
		t.Fatalf("second event type = %v; want FinishedDeviceScan", buf[1].Type)
	}
	// The only keyboard present is the built-in one: external id 0.
	if buf[0].DeviceID != 0 {
		t.Fatalf("built-in keyboard external id = %d; want 0", buf[0].DeviceID)
	}
}

func TestGetEventsColdStartNoDevices(t *testing.T) {
	// Scenario S2 first half: empty directory still produces FinishedDeviceScan.
	f := newPathFake()
	h := newTestHub(t, f, t.TempDir())

	buf := make([]RawEvent, 8)
	n := h.GetEvents(100, buf, len(buf))
	if n != 1 || buf[0].Type != FinishedDeviceScan {
		t.Fatalf("GetEvents on empty dir = %d events, first=%v; want 1, FinishedDeviceScan", n, buf[0].Type)
	}
}

func TestWakeInterruptsBlockingWait(t *testing.T) {
	// Scenario S4.
	f := newPathFake()
	h := newTestHub(t, f, t.TempDir())

	buf := make([]RawEvent, 8)
	// Consume the startup scan first.
	h.GetEvents(0, buf, len(buf))

	if err := h.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	n := h.GetEvents(5000, buf, len(buf))
	if n != 0 {
		t.Fatalf("GetEvents after Wake() = %d; want 0", n)
	}
}

func TestBuiltinKeyboardIdRemapping(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "event0"), nil, 0644); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	f := newPathFake()
	f.register(filepath.Join(dir, "event0"), keyboardFakeDevice())
	h := newTestHub(t, f, dir)

	buf := make([]RawEvent, 8)
	h.GetEvents(0, buf, len(buf))

	classes := h.GetDeviceClasses(0)
	if !classes.Has(ClassKeyboard) {
		t.Fatalf("external id 0 should resolve to the built-in keyboard, got classes=%s", classes)
	}
	if h.GetDeviceClasses(999).Has(ClassKeyboard) {
		t.Fatalf("unknown id should return the empty class set")
	}
}

func TestDumpWritesSummary(t *testing.T) {
	f := newPathFake()
	h := newTestHub(t, f, t.TempDir())
	buf := make([]RawEvent, 8)
	h.GetEvents(0, buf, len(buf))

	var out bytes.Buffer
	if err := h.Dump(&out); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("Dump should write a non-empty summary")
	}
}

func TestDumpReportsUnattachedVideoDevices(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "v4l-touch0"), nil, 0644); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	f := newPathFake()
	cfg := config.DefaultConfig()
	cfg.InputDirectory = dir
	cfg.VideoDirectory = dir

	h, err := New(f, cfg, WithVideoFactory(&fakeVideoFactory{fd: 9001}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]RawEvent, 8)
	h.GetEvents(0, buf, len(buf))

	var out bytes.Buffer
	if err := h.Dump(&out); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(out.String(), "unattached video devices: 1") {
		t.Fatalf("Dump output = %q; want it to report 1 unattached video device", out.String())
	}
}

func TestMonitorReportsLockAvailability(t *testing.T) {
	f := newPathFake()
	h := newTestHub(t, f, t.TempDir())
	if !h.Monitor() {
		t.Fatalf("Monitor should report true when the lock is free")
	}
}

func TestEnableDisableErrors(t *testing.T) {
	f := newPathFake()
	h := newTestHub(t, f, t.TempDir())
	buf := make([]RawEvent, 8)
	h.GetEvents(0, buf, len(buf))

	if err := h.Enable(42); !IsKind(err, KindNotFound) {
		t.Fatalf("Enable of unknown id = %v; want KindNotFound", err)
	}
	if err := h.Disable(42); !IsKind(err, KindNotFound) {
		t.Fatalf("Disable of unknown id = %v; want KindNotFound", err)
	}
}
