//go:build linux

package hostio

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/inputhub/eventhub/internal/bitmask"
	"github.com/inputhub/eventhub/internal/evcode"
	"github.com/inputhub/eventhub/internal/ioctlcode"
)

// Linux is the production HostIO backed directly by golang.org/x/sys/unix
// syscalls. It opens devices non-blocking, as the reader thread must
// never stall on a single misbehaving device (spec.md §4.6).
type Linux struct{}

var _ HostIO = Linux{}

func (Linux) OpenDevice(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

func (Linux) CloseFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func readString(fd int, req uint, cap int) (string, error) {
	buf := make([]byte, cap)
	if err := ioctlcode.DoBuf(uintptr(fd), req, buf); err != nil {
		return "", err
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

func (Linux) DeviceName(fd int) (string, error) { return readString(fd, evcode.EVIOCGNAME(256), 256) }
func (Linux) DevicePhys(fd int) (string, error) { return readString(fd, evcode.EVIOCGPHYS(256), 256) }
func (Linux) DeviceUniq(fd int) (string, error) { return readString(fd, evcode.EVIOCGUNIQ(256), 256) }

func (Linux) DeviceID(fd int) (DeviceIdent, error) {
	var id evcode.InputID
	if err := ioctlcode.Do(uintptr(fd), evcode.EVIOCGID, &id); err != nil {
		return DeviceIdent{}, err
	}
	return DeviceIdent{Bus: id.Bustype, Vendor: id.Vendor, Product: id.Product, Version: id.Version}, nil
}

func readBits(fd int, req uint, maxCode int) (*bitmask.BitMask, error) {
	n := (maxCode + 7) / 8
	buf := make([]byte, n)
	if err := ioctlcode.DoBuf(uintptr(fd), req, buf); err != nil {
		return nil, err
	}
	mask := bitmask.New(maxCode)
	mask.LoadFromBuffer(buf)
	return mask, nil
}

func (Linux) DeviceEventTypes(fd int) (*bitmask.BitMask, error) {
	return readBits(fd, evcode.EVIOCGBIT(0, 4), 32)
}

func (Linux) DeviceCodeBits(fd int, evType uint16, maxCode int) (*bitmask.BitMask, error) {
	return readBits(fd, evcode.EVIOCGBIT(evType, uint((maxCode+7)/8)), maxCode)
}

func (Linux) DeviceProps(fd int) (*bitmask.BitMask, error) {
	return readBits(fd, evcode.EVIOCGPROP(uint((evcode.PropMax+7)/8)), evcode.PropMax)
}

func (Linux) DeviceAbsInfo(fd int, axis uint16) (AbsAxisInfo, error) {
	var info evcode.AbsInfo
	if err := ioctlcode.Do(uintptr(fd), evcode.EVIOCGABS(axis), &info); err != nil {
		return AbsAxisInfo{}, err
	}
	if info.Minimum == 0 && info.Maximum == 0 {
		return AbsAxisInfo{}, nil
	}
	return AbsAxisInfo{
		Valid:      true,
		Value:      info.Value,
		Min:        info.Minimum,
		Max:        info.Maximum,
		Flat:       info.Flat,
		Fuzz:       info.Fuzz,
		Resolution: info.Resolution,
	}, nil
}

func (Linux) DeviceKeyState(fd int, maxCode int) (*bitmask.BitMask, error) {
	return readBits(fd, evcode.EVIOCGKEY(uint((maxCode+7)/8)), maxCode)
}

func (Linux) DeviceSwState(fd int, maxCode int) (*bitmask.BitMask, error) {
	return readBits(fd, evcode.EVIOCGSW(uint((maxCode+7)/8)), maxCode)
}

func (Linux) DeviceLedState(fd int, maxCode int) (*bitmask.BitMask, error) {
	return readBits(fd, evcode.EVIOCGLED(uint((maxCode+7)/8)), maxCode)
}

func (Linux) ReadEvent(fd int) (RawKernelEvent, error) {
	var raw evcode.KernelEvent
	buf := make([]byte, unsafe.Sizeof(raw))
	n, err := unix.Read(fd, buf)
	if err != nil {
		return RawKernelEvent{}, err
	}
	if n < len(buf) {
		return RawKernelEvent{}, fmt.Errorf("hostio: short read of input_event (%d of %d bytes)", n, len(buf))
	}
	raw.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	raw.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	raw.Type = binary.LittleEndian.Uint16(buf[16:18])
	raw.Code = binary.LittleEndian.Uint16(buf[18:20])
	raw.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))

	return RawKernelEvent{
		TimestampNs: raw.Sec*1_000_000_000 + raw.Usec*1_000,
		Type:        raw.Type,
		Code:        raw.Code,
		Value:       raw.Value,
	}, nil
}

func (Linux) UploadRumbleEffect(fd int, strongMagnitude, weakMagnitude uint16, durationMs uint32) (int16, error) {
	effect := evcode.FFEffect{
		Type: evcode.FF_RUMBLE,
		ID:   -1,
	}
	effect.Replay.Length = uint16(durationMs)
	effect.Rumble.StrongMagnitude = strongMagnitude
	effect.Rumble.WeakMagnitude = weakMagnitude

	if err := ioctlcode.Do(uintptr(fd), evcode.EVIOCSFF, &effect); err != nil {
		return -1, err
	}
	return effect.ID, nil
}

func (Linux) EraseEffect(fd int, effectID int16) error {
	id := int32(effectID)
	return ioctlcode.Do(uintptr(fd), evcode.EVIOCRMFF, &id)
}

func (Linux) PlayEffect(fd int, effectID int16, play bool) error {
	value := int32(0)
	if play {
		value = 1
	}
	ev := evcode.KernelEvent{Type: evcode.EV_FF, Code: uint16(effectID), Value: value}
	return writeEvent(fd, ev)
}

func (Linux) SetLED(fd int, ledCode uint16, on bool) error {
	value := int32(0)
	if on {
		value = 1
	}
	ev := evcode.KernelEvent{Type: evcode.EV_LED, Code: ledCode, Value: value}
	return writeEvent(fd, ev)
}

func writeEvent(fd int, ev evcode.KernelEvent) error {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(ev.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(ev.Usec))
	binary.LittleEndian.PutUint16(buf[16:18], ev.Type)
	binary.LittleEndian.PutUint16(buf[18:20], ev.Code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(ev.Value))
	_, err := unix.Write(fd, buf)
	return err
}

func (Linux) EpollCreate() (int, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("epoll_create1: %w", err)
	}
	return fd, nil
}

func (Linux) EpollAdd(epfd, fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl(ADD, %d): %w", fd, err)
	}
	return nil
}

func (Linux) EpollDel(epfd, fd int) error {
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl(DEL, %d): %w", fd, err)
	}
	return nil
}

func (Linux) EpollWait(epfd int, timeoutMs int, maxEvents int) ([]ReadyEvent, error) {
	raw := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(epfd, raw, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}
		out := make([]ReadyEvent, n)
		for i := 0; i < n; i++ {
			out[i] = ReadyEvent{FD: int(raw[i].Fd), Events: raw[i].Events}
		}
		return out, nil
	}
}

func (Linux) InotifyInit() (int, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("inotify_init1: %w", err)
	}
	return fd, nil
}

func (Linux) InotifyAddWatch(inotifyFD int, path string) (int, error) {
	wd, err := unix.InotifyAddWatch(inotifyFD, path, unix.IN_CREATE|unix.IN_DELETE|unix.IN_MOVED_TO|unix.IN_MOVED_FROM)
	if err != nil {
		return -1, fmt.Errorf("inotify_add_watch(%s): %w", path, err)
	}
	return wd, nil
}

// inotify_event header: wd(int32) mask(uint32) cookie(uint32) len(uint32) + name[len]
const inotifyHeaderSize = 16

func (Linux) InotifyRead(inotifyFD int) ([]InotifyEvent, error) {
	buf := make([]byte, 4096)
	n, err := unix.Read(inotifyFD, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("inotify read: %w", err)
	}

	var events []InotifyEvent
	off := 0
	for off+inotifyHeaderSize <= n {
		wd := int(int32(binary.LittleEndian.Uint32(buf[off : off+4])))
		mask := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		nameLen := int(binary.LittleEndian.Uint32(buf[off+12 : off+16]))

		nameStart := off + inotifyHeaderSize
		nameEnd := nameStart + nameLen
		if nameEnd > n {
			break
		}
		name := ""
		if nameLen > 0 {
			raw := buf[nameStart:nameEnd]
			z := 0
			for z < len(raw) && raw[z] != 0 {
				z++
			}
			name = string(raw[:z])
		}
		events = append(events, InotifyEvent{Wd: wd, Mask: mask, Name: name})
		off = nameEnd
	}
	return events, nil
}

func (Linux) Pipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, fmt.Errorf("pipe2: %w", err)
	}
	return fds[0], fds[1], nil
}

func (Linux) DrainByte(fd int) (bool, error) {
	var b [1]byte
	n, err := unix.Read(fd, b[:])
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func (Linux) WriteByte(fd int) error {
	_, err := unix.Write(fd, []byte{1})
	if err == unix.EAGAIN {
		// pipe already has a pending wake byte; idempotent per spec.md §5.
		return nil
	}
	return err
}
