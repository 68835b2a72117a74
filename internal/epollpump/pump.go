// Package epollpump owns the epoll instance, the inotify instance
// watching the input and video directories, and the self-pipe used to
// interrupt a blocked wait from another goroutine (spec.md §4.5).
package epollpump

import (
	"fmt"
	"log/slog"

	"github.com/inputhub/eventhub/internal/hostio"
)

// DefaultBatch is the default capacity of the readiness batch returned
// from Wait, matching spec.md §4.5's stated default of 16.
const DefaultBatch = 16

// Pump multiplexes readiness across every registered device fd plus
// the inotify fd and the wake pipe. Not safe for concurrent Wait
// calls; RegisterFD/UnregisterFD/Wake may be called from other
// goroutines while a Wait is in progress, same as epoll itself allows.
type Pump struct {
	io     hostio.HostIO
	logger *slog.Logger

	epfd      int
	inotifyFD int
	watches   map[string]int // path -> watch descriptor
	watchDirs map[int]string // watch descriptor -> path

	pipeRead, pipeWrite int

	batch int
}

// New creates the epoll instance, the inotify instance, and the
// self-pipe, and registers both the inotify fd and the pipe's read end
// with epoll. batch <= 0 uses DefaultBatch.
func New(io hostio.HostIO, logger *slog.Logger, batch int) (*Pump, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = DefaultBatch
	}

	epfd, err := io.EpollCreate()
	if err != nil {
		return nil, fmt.Errorf("epollpump: epoll_create: %w", err)
	}

	inotifyFD, err := io.InotifyInit()
	if err != nil {
		return nil, fmt.Errorf("epollpump: inotify_init: %w", err)
	}

	readFD, writeFD, err := io.Pipe()
	if err != nil {
		return nil, fmt.Errorf("epollpump: pipe: %w", err)
	}

	p := &Pump{
		io:        io,
		logger:    logger,
		epfd:      epfd,
		inotifyFD: inotifyFD,
		watches:   make(map[string]int),
		pipeRead:  readFD,
		pipeWrite: writeFD,
		batch:     batch,
	}

	if err := io.EpollAdd(epfd, inotifyFD); err != nil {
		return nil, fmt.Errorf("epollpump: registering inotify fd: %w", err)
	}
	if err := io.EpollAdd(epfd, readFD); err != nil {
		return nil, fmt.Errorf("epollpump: registering wake pipe: %w", err)
	}

	return p, nil
}

// WatchDirectory adds an inotify watch for create/delete/move events
// on dir (e.g. /dev/input or the video device directory), per spec.md
// §4.5 "watches on the input and video node directories".
func (p *Pump) WatchDirectory(dir string) error {
	wd, err := p.io.InotifyAddWatch(p.inotifyFD, dir)
	if err != nil {
		return fmt.Errorf("epollpump: watching %s: %w", dir, err)
	}
	p.watches[dir] = wd
	if p.watchDirs == nil {
		p.watchDirs = make(map[int]string)
	}
	p.watchDirs[wd] = dir
	return nil
}

// DirForWatch returns the directory a watch descriptor was registered
// for, so an inotify event's Wd can be turned back into a full path.
func (p *Pump) DirForWatch(wd int) (string, bool) {
	dir, ok := p.watchDirs[wd]
	return dir, ok
}

// RegisterFD adds fd (an open device descriptor) to the epoll set.
func (p *Pump) RegisterFD(fd int) error {
	if err := p.io.EpollAdd(p.epfd, fd); err != nil {
		return fmt.Errorf("epollpump: registering fd %d: %w", fd, err)
	}
	return nil
}

// UnregisterFD removes fd from the epoll set. Errors are logged, not
// returned: a device that vanished underneath us (closed externally)
// may already be gone from the epoll set, and that's not a reason to
// fail the caller's close path (spec.md §7, local-device errors never
// abort the hub).
func (p *Pump) UnregisterFD(fd int) {
	if err := p.io.EpollDel(p.epfd, fd); err != nil {
		p.logger.Debug("epollpump: unregister fd failed", "fd", fd, "error", err)
	}
}

// Ready is one readiness notification handed back from Wait, already
// classified by source.
type Ready struct {
	FD        int
	Events    uint32
	IsInotify bool
	IsWake    bool
}

// Wait blocks up to timeoutMs (negative blocks indefinitely, matching
// epoll_wait's -1 convention) and returns the fds that became ready,
// capped at the pump's batch size, classifying the inotify fd and the
// wake pipe so EventLoop doesn't need to compare raw fd numbers
// itself. EINTR is retried transparently (spec.md §7: interrupted
// syscalls are not errors).
func (p *Pump) Wait(timeoutMs int) ([]Ready, error) {
	events, err := p.io.EpollWait(p.epfd, timeoutMs, p.batch)
	if err != nil {
		return nil, fmt.Errorf("epollpump: epoll_wait: %w", err)
	}

	out := make([]Ready, 0, len(events))
	for _, ev := range events {
		r := Ready{FD: ev.FD, Events: ev.Events}
		switch ev.FD {
		case p.inotifyFD:
			r.IsInotify = true
		case p.pipeRead:
			r.IsWake = true
		}
		out = append(out, r)
	}
	return out, nil
}

// DrainInotify reads and decodes every pending inotify record, to be
// called after Wait reports the inotify fd ready.
func (p *Pump) DrainInotify() ([]hostio.InotifyEvent, error) {
	events, err := p.io.InotifyRead(p.inotifyFD)
	if err != nil {
		return nil, fmt.Errorf("epollpump: inotify read: %w", err)
	}
	return events, nil
}

// DrainWake consumes any bytes written to the wake pipe, to be called
// after Wait reports the pipe's read end ready. Returns whether a wake
// was actually pending (a spurious readiness is possible after a
// concurrent Wake/drain race and is harmless to ignore).
func (p *Pump) DrainWake() (bool, error) {
	return p.io.DrainByte(p.pipeRead)
}

// Wake interrupts a blocked Wait from another goroutine, by writing a
// single byte to the self-pipe (spec.md §4.5/§9 "self-pipe wake
// pattern").
func (p *Pump) Wake() error {
	if err := p.io.WriteByte(p.pipeWrite); err != nil {
		return fmt.Errorf("epollpump: wake: %w", err)
	}
	return nil
}

// Close releases the epoll, inotify, and pipe descriptors. Best-effort:
// the pump is being torn down, so individual close failures are logged
// and otherwise ignored.
func (p *Pump) Close() {
	for _, fd := range []int{p.pipeRead, p.pipeWrite, p.inotifyFD, p.epfd} {
		if err := p.io.CloseFD(fd); err != nil {
			p.logger.Debug("epollpump: close failed", "fd", fd, "error", err)
		}
	}
}
