// Package ioctlcode builds Linux ioctl request codes using the same
// direction/type/number/size encoding as asm-generic/ioctl.h, and
// performs the underlying syscall. Ground truth for the encoding is
// the evdev ioctl family this module issues against /dev/input/eventN:
// EVIOCGBIT, EVIOCGABS, EVIOCGKEY, EVIOCGSW, EVIOCGLED, EVIOCGID,
// EVIOCGNAME, EVIOCGUNIQ, EVIOCGPHYS, EVIOCGPROP, EVIOCSFF, EVIOCRMFF.
package ioctlcode

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	dirNone  = 0
	dirWrite = 1
	dirRead  = 2

	nrBits   = 8
	typeBits = 8
	sizeBits = 14

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits
)

func encode(dir, typ, nr, size uint) uint {
	return dir<<dirShift | typ<<typeShift | nr<<nrShift | size<<sizeShift
}

// IOR builds a "read from kernel" request code: typ is the ioctl magic
// (e.g. 'E' for evdev), nr the command number, and sample a zero value
// of the type that will be read back.
func IOR(typ, nr uint, sample any) uint {
	return encode(dirRead, typ, nr, uint(unsafe.Sizeof(sample)))
}

// IOW builds a "write to kernel" request code.
func IOW(typ, nr uint, sample any) uint {
	return encode(dirWrite, typ, nr, uint(unsafe.Sizeof(sample)))
}

// IOSized builds a request code for variable-length buffer transfers
// (EVIOCGNAME, EVIOCGPHYS, EVIOCGUNIQ, EVIOCGPROP, EVIOCGBIT), where
// the size isn't a fixed Go type but a caller-chosen buffer length.
func IOSized(dir, typ, nr, size uint) uint {
	return encode(dir, typ, nr, size)
}

// Dir constants re-exported for IOSized callers.
const (
	DirRead  = dirRead
	DirWrite = dirWrite
)

// Do issues req against fd, reading kernel output into (or writing
// Go-side data from) *arg. A nil arg is valid for ioctls that carry no
// payload.
func Do[T any](fd uintptr, req uint, arg *T) error {
	var errno syscall.Errno

	_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return errno
	}
	return nil
}

// DoBuf is Do specialised for the variable-length buffer family
// (EVIOCGNAME and friends), where arg is a byte slice rather than a
// fixed-size struct pointer.
func DoBuf(fd uintptr, req uint, buf []byte) error {
	var errno syscall.Errno

	if len(buf) == 0 {
		return nil
	}
	_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}
