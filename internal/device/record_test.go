package device

import (
	"testing"

	"github.com/inputhub/eventhub/internal/capability"
	"github.com/inputhub/eventhub/internal/hostio"
)

func TestNewHandlesNilProbeBitmasks(t *testing.T) {
	// The virtual keyboard is installed with a Result that only sets
	// Classes, leaving every bitmask field nil; New must not panic.
	rec := New("virtual-keyboard", "", -1, hostio.DeviceIdent{}, "Virtual Keyboard", "", "", capability.Result{
		Classes: capability.Set(capability.Keyboard | capability.Virtual),
	})
	if rec.KeyBits == nil || rec.KeyBits.Len() != 0 {
		t.Fatalf("nil probe bitmask should be substituted with a zero-width mask")
	}
	if rec.Vibrator.EffectID != -1 {
		t.Fatalf("Vibrator.EffectID default = %d; want -1 (no effect)", rec.Vibrator.EffectID)
	}
}

func TestEnabledToggle(t *testing.T) {
	rec := New("d", "/dev/input/event0", 3, hostio.DeviceIdent{}, "Test", "", "", capability.Result{})
	if !rec.IsEnabled() {
		t.Fatalf("a new record should start enabled")
	}
	rec.SetEnabled(false)
	if rec.IsEnabled() {
		t.Fatalf("SetEnabled(false) should disable")
	}
}

type stubVideo struct{ path string }

func (s *stubVideo) Path() string                        { return s.path }
func (s *stubVideo) AssociatedInputPath() (string, error) { return "", nil }
func (s *stubVideo) FD() int                              { return 9 }
func (s *stubVideo) DrainFrames() [][]byte                { return nil }
func (s *stubVideo) PushFrame(frame []byte)               {}
func (s *stubVideo) Close() error                         { return nil }

func TestAttachDetachVideo(t *testing.T) {
	rec := New("d", "/dev/input/event0", 3, hostio.DeviceIdent{}, "Test", "", "", capability.Result{})
	v := &stubVideo{path: "/dev/v4l-touch0"}
	rec.AttachVideo(v)
	if rec.Video == nil {
		t.Fatalf("AttachVideo should set Video")
	}
	got := rec.DetachVideo()
	if got != v {
		t.Fatalf("DetachVideo should return the attached device")
	}
	if rec.Video != nil {
		t.Fatalf("DetachVideo should clear Video")
	}
}

func TestVideoFrameQueueBounded(t *testing.T) {
	rec := New("d", "/dev/input/event0", 3, hostio.DeviceIdent{}, "Test", "", "", capability.Result{})
	for i := 0; i < 12; i++ {
		rec.PushVideoFrame([]byte{byte(i)})
	}
	frames := rec.DrainVideoFrames()
	if len(frames) != 8 {
		t.Fatalf("queue should be bounded to 8 frames, got %d", len(frames))
	}
	if frames[0][0] != 4 {
		t.Fatalf("queue should drop oldest frames first, got first=%v", frames[0])
	}
	if drained := rec.DrainVideoFrames(); len(drained) != 0 {
		t.Fatalf("DrainVideoFrames should clear the queue")
	}
}

func TestVirtualKeyAt(t *testing.T) {
	rec := New("d", "/dev/input/event0", 3, hostio.DeviceIdent{}, "Test", "", "", capability.Result{})
	rec.VirtualKeys = []VirtualKeyRegion{
		{KeyCode: 30, MinX: 0, MinY: 0, MaxX: 100, MaxY: 100},
	}
	code, ok := rec.VirtualKeyAt(50, 50)
	if !ok || code != 30 {
		t.Fatalf("VirtualKeyAt inside region = %d, %v; want 30, true", code, ok)
	}
	if _, ok := rec.VirtualKeyAt(500, 500); ok {
		t.Fatalf("VirtualKeyAt outside any region should miss")
	}
}
