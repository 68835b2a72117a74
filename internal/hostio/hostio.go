// Package hostio is the abstract operation table for every kernel
// syscall the Event Hub issues: device ioctls and reads, epoll,
// inotify, and the self-pipe. spec.md §9 ("Virtual polymorphism")
// calls for a capability-set interface with one production
// implementation and one test double rather than an inheritance
// hierarchy; HostIO is that interface. linux.go is the production
// implementation; fake.go is the test double.
package hostio

import "github.com/inputhub/eventhub/internal/bitmask"

// AbsAxisInfo mirrors spec.md §3 RawAbsoluteAxisInfo: all fields are
// zero when Valid is false.
type AbsAxisInfo struct {
	Valid      bool
	Value      int32
	Min        int32
	Max        int32
	Flat       int32
	Fuzz       int32
	Resolution int32
}

// DeviceIdent is the subset of InputDeviceIdentifier (spec.md §3)
// sourced directly from the kernel; Name/Phys/Uniq are read
// separately since they're variable-length strings.
type DeviceIdent struct {
	Bus     uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// RawKernelEvent is one decoded struct input_event, timestamp already
// converted to monotonic nanoseconds.
type RawKernelEvent struct {
	TimestampNs int64
	Type        uint16
	Code        uint16
	Value       int32
}

// InotifyEvent is one decoded inotify_event record.
type InotifyEvent struct {
	Wd   int
	Mask uint32
	Name string
}

// Inotify masks the pump cares about.
const (
	InCreate   uint32 = 0x00000100
	InDelete   uint32 = 0x00000200
	InMovedFrom uint32 = 0x00000040
	InMovedTo  uint32 = 0x00000080
)

// Epoll readiness masks the pump cares about.
const (
	EpollIn  uint32 = 0x001
	EpollErr uint32 = 0x008
	EpollHup uint32 = 0x010
)

// ReadyEvent is one readiness notification from EpollWait.
type ReadyEvent struct {
	FD     int
	Events uint32
}

// HostIO is the full syscall surface the hub depends on. Every method
// that can fail from the kernel returns an error; callers decide
// whether that's fatal (startup epoll/inotify setup, spec.md §7) or
// local (a single device's read, also §7).
type HostIO interface {
	// Device lifecycle and identity.
	OpenDevice(path string) (int, error)
	CloseFD(fd int) error
	DeviceName(fd int) (string, error)
	DevicePhys(fd int) (string, error)
	DeviceUniq(fd int) (string, error)
	DeviceID(fd int) (DeviceIdent, error)

	// Capability probing (spec.md §4.3).
	DeviceEventTypes(fd int) (*bitmask.BitMask, error)
	DeviceCodeBits(fd int, evType uint16, maxCode int) (*bitmask.BitMask, error)
	DeviceProps(fd int) (*bitmask.BitMask, error)
	DeviceAbsInfo(fd int, axis uint16) (AbsAxisInfo, error)

	// State queries (spec.md §4.8), issued directly on a cache miss.
	DeviceKeyState(fd int, maxCode int) (*bitmask.BitMask, error)
	DeviceSwState(fd int, maxCode int) (*bitmask.BitMask, error)
	DeviceLedState(fd int, maxCode int) (*bitmask.BitMask, error)

	// Event stream.
	ReadEvent(fd int) (RawKernelEvent, error)

	// Vibration and LEDs (spec.md §4.9).
	UploadRumbleEffect(fd int, strongMagnitude, weakMagnitude uint16, durationMs uint32) (effectID int16, err error)
	EraseEffect(fd int, effectID int16) error
	PlayEffect(fd int, effectID int16, play bool) error
	SetLED(fd int, ledCode uint16, on bool) error

	// Multiplexing (spec.md §4.5).
	EpollCreate() (int, error)
	EpollAdd(epfd, fd int) error
	EpollDel(epfd, fd int) error
	EpollWait(epfd int, timeoutMs int, maxEvents int) ([]ReadyEvent, error)

	InotifyInit() (int, error)
	InotifyAddWatch(inotifyFD int, path string) (watchDescriptor int, err error)
	InotifyRead(inotifyFD int) ([]InotifyEvent, error)

	Pipe() (readFD int, writeFD int, err error)
	DrainByte(fd int) (bool, error)
	WriteByte(fd int) error
}
