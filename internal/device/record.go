// Package device defines the DeviceRecord: everything the hub tracks
// about one open input device for as long as it stays open (spec.md
// §3). A DeviceRecord is owned by exactly one DeviceManager and
// touched only while the hub lock is held, by the EventLoop and by
// the hub's query and control methods.
package device

import (
	"sync"

	"github.com/inputhub/eventhub/internal/bitmask"
	"github.com/inputhub/eventhub/internal/capability"
	"github.com/inputhub/eventhub/internal/devconfig"
	"github.com/inputhub/eventhub/internal/hostio"
	"github.com/inputhub/eventhub/internal/keymap"
	"github.com/inputhub/eventhub/internal/videoregistry"
)

// VibratorState is the device's force-feedback rumble state (spec.md §3).
type VibratorState struct {
	EffectID int16
	Playing  bool
}

// VirtualKeyRegion is one entry of a virtual-key polygon list: a named
// zone on a touch surface that maps to a key code rather than a touch
// point (spec.md §3, adapted from the teacher's notion of on-screen
// soft keys).
type VirtualKeyRegion struct {
	KeyCode    uint16
	MinX, MinY int32
	MaxX, MaxY int32
}

// Record is one open device's full state: identity, capabilities, live
// state mirrors, key mapping, and any paired video stream.
type Record struct {
	mu sync.Mutex

	// InternalIDValue is the stable small integer the DeviceManager
	// assigned this record (spec.md §3 DeviceId). Exported for the
	// devicemanager package to set at registration time; read through
	// InternalID() elsewhere.
	InternalIDValue int

	Descriptor string // unique, possibly suffixed name (spec.md §4.6)
	Path       string
	FD         int

	Ident hostio.DeviceIdent
	Name  string
	Phys  string
	Uniq  string

	ControllerNumber int // 0 if unallocated
	Enabled          bool
	External         bool

	Classes  capability.Set
	KeyBits  *bitmask.BitMask
	AbsBits  *bitmask.BitMask
	RelBits  *bitmask.BitMask
	SwBits   *bitmask.BitMask
	LedBits  *bitmask.BitMask
	FfBits   *bitmask.BitMask
	PropBits *bitmask.BitMask

	KeyState *bitmask.BitMask
	SwState  *bitmask.BitMask
	LedState *bitmask.BitMask

	// *StateSynced tracks whether the corresponding mirror has been
	// primed with a direct kernel read since the fd was last opened.
	// Until primed, the mirror is all-zero and a state query must fall
	// back to an ioctl rather than trust it (spec.md §4.8).
	KeyStateSynced bool
	SwStateSynced  bool
	LedStateSynced bool

	KeyMap *keymap.Device

	VirtualKeys []VirtualKeyRegion

	Properties  map[string]string
	LedOverride devconfig.LedOverride

	Vibrator VibratorState

	Video videoregistry.TouchVideoDevice

	videoFrames [][]byte
}

// New builds a Record from a probe Result and the descriptor/path the
// DeviceManager assigned.
func New(descriptor, path string, fd int, ident hostio.DeviceIdent, name, phys, uniq string, probe capability.Result) *Record {
	zeroIfNil := func(b *bitmask.BitMask) *bitmask.BitMask {
		if b == nil {
			return bitmask.New(0)
		}
		return b
	}
	probe.KeyBits = zeroIfNil(probe.KeyBits)
	probe.AbsBits = zeroIfNil(probe.AbsBits)
	probe.RelBits = zeroIfNil(probe.RelBits)
	probe.SwBits = zeroIfNil(probe.SwBits)
	probe.LedBits = zeroIfNil(probe.LedBits)
	probe.FfBits = zeroIfNil(probe.FfBits)
	probe.PropBits = zeroIfNil(probe.PropBits)

	return &Record{
		Descriptor: descriptor,
		Path:       path,
		FD:         fd,
		Ident:      ident,
		Name:       name,
		Phys:       phys,
		Uniq:       uniq,
		Enabled:    true,
		External:   probe.Classes.Has(capability.External),
		Classes:    probe.Classes,
		KeyBits:    probe.KeyBits,
		AbsBits:    probe.AbsBits,
		RelBits:    probe.RelBits,
		SwBits:     probe.SwBits,
		LedBits:    probe.LedBits,
		FfBits:     probe.FfBits,
		PropBits:   probe.PropBits,
		KeyState:   bitmask.New(probe.KeyBits.Len()),
		SwState:    bitmask.New(probe.SwBits.Len()),
		LedState:   bitmask.New(probe.LedBits.Len()),
		Properties: make(map[string]string),
		Vibrator:   VibratorState{EffectID: -1},
	}
}

// InternalID returns the DeviceManager-assigned internal id.
func (r *Record) InternalID() int {
	return r.InternalIDValue
}

// SetEnabled flips the enabled flag. A disabled device keeps its
// record and probed capabilities, but DeviceManager.Disable closes its
// fd, so the EventLoop reads nothing from it (spec.md §4.6
// enable/disable).
func (r *Record) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Enabled = enabled
}

// IsEnabled reports the current enabled flag.
func (r *Record) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled
}

// AttachVideo pairs a touch-video device with this record (spec.md
// §4.6 pairing). Replaces any previously attached stream without
// closing it — callers are responsible for deciding what happens to
// the old one.
func (r *Record) AttachVideo(v videoregistry.TouchVideoDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Video = v
}

// DetachVideo clears and returns any paired video device.
func (r *Record) DetachVideo() videoregistry.TouchVideoDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.Video
	r.Video = nil
	return v
}

// PushVideoFrame appends a decoded frame for later draining by
// GetVideoFrames (spec.md §6), bounding the queue the same way
// videoregistry.TouchVideoDevice implementations are expected to.
func (r *Record) PushVideoFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	const maxQueued = 8
	r.videoFrames = append(r.videoFrames, frame)
	if len(r.videoFrames) > maxQueued {
		r.videoFrames = r.videoFrames[len(r.videoFrames)-maxQueued:]
	}
}

// DrainVideoFrames returns and clears the queued frames.
func (r *Record) DrainVideoFrames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.videoFrames
	r.videoFrames = nil
	return frames
}

// VirtualKeyAt resolves a touch coordinate to a virtual key region, if
// any is defined covering that point (spec.md §3).
func (r *Record) VirtualKeyAt(x, y int32) (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vk := range r.VirtualKeys {
		if x >= vk.MinX && x <= vk.MaxX && y >= vk.MinY && y <= vk.MaxY {
			return vk.KeyCode, true
		}
	}
	return 0, false
}
