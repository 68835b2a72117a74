package hostio

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"github.com/inputhub/eventhub/internal/bitmask"
)

// FakeDevice is a scripted device backing a Fake HostIO fd: fixed
// identity and capabilities, plus a queue of events ReadEvent drains
// in order.
type FakeDevice struct {
	Name, Phys, Uniq string
	ID               DeviceIdent
	EventTypes       *bitmask.BitMask
	CodeBits         map[uint16]*bitmask.BitMask
	Props            *bitmask.BitMask
	AbsInfos         map[uint16]AbsAxisInfo

	Events []RawKernelEvent

	Closed bool
}

// Fake is an in-memory HostIO double used by package tests: no real
// kernel is involved, every fd is a small integer index into an
// internal table, and EpollWait/InotifyRead are driven by the test
// pushing synthetic readiness instead of blocking on a real kernel.
type Fake struct {
	mu sync.Mutex

	nextFD   int
	devices  map[int]*FakeDevice
	ledState map[int]*bitmask.BitMask
	keyState map[int]*bitmask.BitMask
	swState  map[int]*bitmask.BitMask

	effects map[int]map[int16]bool // fd -> effectID -> playing

	pendingReady  []ReadyEvent
	pendingInotify map[int][]InotifyEvent

	pipeRead, pipeWrite int
	woken               bool
}

var _ HostIO = (*Fake)(nil)

// NewFake builds an empty Fake table.
func NewFake() *Fake {
	return &Fake{
		devices:        make(map[int]*FakeDevice),
		ledState:       make(map[int]*bitmask.BitMask),
		keyState:       make(map[int]*bitmask.BitMask),
		swState:        make(map[int]*bitmask.BitMask),
		effects:        make(map[int]map[int16]bool),
		pendingInotify: make(map[int][]InotifyEvent),
		pipeRead:       -1,
		pipeWrite:      -1,
	}
}

// AddDevice registers dev under a fresh fd and returns it, so tests
// can then call OpenDevice with a path that the test's own bookkeeping
// maps to that fd (the Fake itself doesn't interpret paths).
func (f *Fake) AddDevice(dev *FakeDevice) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFD++
	fd := f.nextFD
	f.devices[fd] = dev
	f.keyState[fd] = bitmask.New(evcodeKeyMax)
	f.swState[fd] = bitmask.New(evcodeSwMax)
	f.ledState[fd] = bitmask.New(evcodeLedMax)
	f.effects[fd] = make(map[int16]bool)
	return fd
}

// evcodeKeyMax etc. are small copies of internal/evcode's constants;
// kept tiny and named after their source so they read as the same
// budget, not a divergent one.
const (
	evcodeKeyMax = 0x2ff
	evcodeSwMax  = 0x10
	evcodeLedMax = 0x0f
)

// SetInitialKeyState pre-seeds fd's key mirror as if the kernel
// already reported code held before any event was read — lets tests
// exercise the EVIOCGKEY sync-on-miss fallback a state query performs
// the first time it consults a freshly opened device.
func (f *Fake) SetInitialKeyState(fd int, code int, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.keyState[fd]; ok {
		m.Set(code, down)
	}
}

// SetInitialSwState is SetInitialKeyState for switch codes.
func (f *Fake) SetInitialSwState(fd int, code int, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.swState[fd]; ok {
		m.Set(code, on)
	}
}

// QueueReady arranges for EpollWait to report fd as readable on its
// next call.
func (f *Fake) QueueReady(fd int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingReady = append(f.pendingReady, ReadyEvent{FD: fd, Events: EpollIn})
}

// QueueInotify arranges for InotifyRead(inotifyFD) to return events.
func (f *Fake) QueueInotify(inotifyFD int, events ...InotifyEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingInotify[inotifyFD] = append(f.pendingInotify[inotifyFD], events...)
}

func (f *Fake) OpenDevice(path string) (int, error) {
	return -1, fmt.Errorf("hostio.Fake: OpenDevice(%q) not scripted; call AddDevice and map the path in the test", path)
}

func (f *Fake) CloseFD(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dev, ok := f.devices[fd]; ok {
		dev.Closed = true
	}
	return nil
}

func (f *Fake) device(fd int) (*FakeDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev, ok := f.devices[fd]
	if !ok {
		return nil, fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
	}
	return dev, nil
}

func (f *Fake) DeviceName(fd int) (string, error) { d, err := f.device(fd); if err != nil { return "", err }; return d.Name, nil }
func (f *Fake) DevicePhys(fd int) (string, error) { d, err := f.device(fd); if err != nil { return "", err }; return d.Phys, nil }
func (f *Fake) DeviceUniq(fd int) (string, error) { d, err := f.device(fd); if err != nil { return "", err }; return d.Uniq, nil }

func (f *Fake) DeviceID(fd int) (DeviceIdent, error) {
	d, err := f.device(fd)
	if err != nil {
		return DeviceIdent{}, err
	}
	return d.ID, nil
}

func (f *Fake) DeviceEventTypes(fd int) (*bitmask.BitMask, error) {
	d, err := f.device(fd)
	if err != nil {
		return nil, err
	}
	if d.EventTypes == nil {
		return bitmask.New(32), nil
	}
	return d.EventTypes, nil
}

func (f *Fake) DeviceCodeBits(fd int, evType uint16, maxCode int) (*bitmask.BitMask, error) {
	d, err := f.device(fd)
	if err != nil {
		return nil, err
	}
	if m, ok := d.CodeBits[evType]; ok {
		return m, nil
	}
	return bitmask.New(maxCode), nil
}

func (f *Fake) DeviceProps(fd int) (*bitmask.BitMask, error) {
	d, err := f.device(fd)
	if err != nil {
		return nil, err
	}
	if d.Props == nil {
		return bitmask.New(evcodePropMax), nil
	}
	return d.Props, nil
}

const evcodePropMax = 0x1f

func (f *Fake) DeviceAbsInfo(fd int, axis uint16) (AbsAxisInfo, error) {
	d, err := f.device(fd)
	if err != nil {
		return AbsAxisInfo{}, err
	}
	return d.AbsInfos[axis], nil
}

func (f *Fake) DeviceKeyState(fd int, maxCode int) (*bitmask.BitMask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.keyState[fd]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
}

func (f *Fake) DeviceSwState(fd int, maxCode int) (*bitmask.BitMask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.swState[fd]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
}

func (f *Fake) DeviceLedState(fd int, maxCode int) (*bitmask.BitMask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.ledState[fd]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
}

func (f *Fake) ReadEvent(fd int) (RawKernelEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev, ok := f.devices[fd]
	if !ok {
		return RawKernelEvent{}, fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
	}
	if len(dev.Events) == 0 {
		return RawKernelEvent{}, errEAGAIN
	}
	ev := dev.Events[0]
	dev.Events = dev.Events[1:]

	if ev.Type == 0x01 { // EV_KEY
		f.keyState[fd].Set(int(ev.Code), ev.Value != 0)
	}
	if ev.Type == 0x05 { // EV_SW
		f.swState[fd].Set(int(ev.Code), ev.Value != 0)
	}
	return ev, nil
}

// errEAGAIN is a sentinel distinguishable from a real kernel error so
// EventLoop's read-loop can treat "no more events" as "stop reading
// this fd this turn", exactly like a real EAGAIN would.
var errEAGAIN = fmt.Errorf("hostio.Fake: EAGAIN")

// IsEAGAIN reports whether err is the Fake's (or the real Linux
// implementation's) "try again" sentinel.
func IsEAGAIN(err error) bool {
	return err == errEAGAIN || errors.Is(err, syscall.EAGAIN)
}

func (f *Fake) UploadRumbleEffect(fd int, strong, weak uint16, durationMs uint32) (int16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[fd]; !ok {
		return -1, fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
	}
	id := int16(len(f.effects[fd]) + 1)
	f.effects[fd][id] = false
	return id, nil
}

func (f *Fake) EraseEffect(fd int, effectID int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.effects[fd], effectID)
	return nil
}

func (f *Fake) PlayEffect(fd int, effectID int16, play bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.effects[fd][effectID]; !ok {
		return fmt.Errorf("hostio.Fake: effect %d not uploaded on fd %d", effectID, fd)
	}
	f.effects[fd][effectID] = play
	return nil
}

func (f *Fake) SetLED(fd int, ledCode uint16, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.ledState[fd]
	if !ok {
		return fmt.Errorf("hostio.Fake: no device registered for fd %d", fd)
	}
	m.Set(int(ledCode), on)
	return nil
}

func (f *Fake) EpollCreate() (int, error) { return -1000, nil }
func (f *Fake) EpollAdd(epfd, fd int) error { return nil }
func (f *Fake) EpollDel(epfd, fd int) error { return nil }

func (f *Fake) EpollWait(epfd int, timeoutMs int, maxEvents int) ([]ReadyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pendingReady) == 0 {
		return nil, nil
	}
	n := len(f.pendingReady)
	if n > maxEvents {
		n = maxEvents
	}
	out := f.pendingReady[:n]
	f.pendingReady = f.pendingReady[n:]
	return out, nil
}

func (f *Fake) InotifyInit() (int, error) { return -2000, nil }

func (f *Fake) InotifyAddWatch(inotifyFD int, path string) (int, error) {
	return len(f.pendingInotify) + 1, nil
}

func (f *Fake) InotifyRead(inotifyFD int) ([]InotifyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.pendingInotify[inotifyFD]
	f.pendingInotify[inotifyFD] = nil
	return events, nil
}

func (f *Fake) Pipe() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipeRead, f.pipeWrite = -3000, -3001
	return f.pipeRead, f.pipeWrite, nil
}

func (f *Fake) DrainByte(fd int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.woken {
		return false, nil
	}
	f.woken = false
	return true, nil
}

func (f *Fake) WriteByte(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.woken = true
	// A byte written to the pipe makes its read end readable.
	f.pendingReady = append(f.pendingReady, ReadyEvent{FD: f.pipeRead, Events: EpollIn})
	return nil
}
