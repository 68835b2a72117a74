package eventhub

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/inputhub/eventhub/internal/config"
	"github.com/inputhub/eventhub/internal/controllerpool"
	"github.com/inputhub/eventhub/internal/device"
	"github.com/inputhub/eventhub/internal/devicemanager"
	"github.com/inputhub/eventhub/internal/epollpump"
	"github.com/inputhub/eventhub/internal/hostio"
	"github.com/inputhub/eventhub/internal/keymap"
	"github.com/inputhub/eventhub/internal/videoregistry"
)

// externalBuiltinKeyboardID is the external alias spec.md §3 assigns
// to whatever internal id currently holds the built-in keyboard.
const externalBuiltinKeyboardID = 0

// Hub is the public Event Hub facade: the single aggregation point for
// device discovery, the blocking event stream, and state/control
// queries (spec.md §2). Exactly one reader goroutine should call
// GetEvents; any goroutine may call the query and control methods.
type Hub struct {
	mu sync.Mutex

	io     hostio.HostIO
	cfg    *config.Config
	pump   *epollpump.Pump
	pool   *controllerpool.Pool
	mgr    *devicemanager.Manager
	logger *slog.Logger

	pendingSynthetic []RawEvent
	pendingBatch     []epollpump.Ready
	scanCycleOwed    bool

	awake bool

	droppedRecords uint64
}

// Option configures New.
type Option func(*options)

type options struct {
	videoFactory videoregistry.Factory
	logger       *slog.Logger
	epollBatch   int
}

// WithVideoFactory supplies the host's touch-video stream opener.
// Without one, the hub never discovers video devices (spec.md §1: the
// frame decoder is an out-of-scope collaborator).
func WithVideoFactory(f videoregistry.Factory) Option {
	return func(o *options) { o.videoFactory = f }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEpollBatch overrides the default epoll readiness batch size (16).
func WithEpollBatch(n int) Option {
	return func(o *options) { o.epollBatch = n }
}

// New builds a Hub over io using cfg, wiring the epoll/inotify pump,
// the controller pool, and the keymap loader, and watching cfg's input
// and video directories. The startup scan is not performed here; the
// first GetEvents call performs it (spec.md §4.7 step 2).
func New(io hostio.HostIO, cfg *config.Config, opts ...Option) (*Hub, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	pump, err := epollpump.New(io, o.logger, o.epollBatch)
	if err != nil {
		return nil, newErr(KindIoError, "new", err)
	}
	if err := pump.WatchDirectory(cfg.InputDirectory); err != nil {
		return nil, newErr(KindIoError, "new", err)
	}
	if cfg.VideoDirectory != "" && cfg.VideoDirectory != cfg.InputDirectory {
		if err := pump.WatchDirectory(cfg.VideoDirectory); err != nil {
			o.logger.Warn("eventhub: watching video directory failed", "dir", cfg.VideoDirectory, "error", err)
		}
	}

	pool := controllerpool.New(o.logger)
	videoReg := videoregistry.New()

	layoutDir := cfg.LayoutDirectory
	keyLoader := keymap.NewLoader(keymap.DefaultParser{}, layoutDir, "generic")

	mgr := devicemanager.New(io, pump, cfg, pool, keyLoader, videoReg, o.videoFactory, o.logger)

	return &Hub{
		io:     io,
		cfg:    cfg,
		pump:   pump,
		pool:   pool,
		mgr:    mgr,
		logger: o.logger,
	}, nil
}

// Close releases the epoll, inotify, and pipe descriptors, and every
// open device. Not part of spec.md's consumer surface, but necessary
// for clean process shutdown; mirrors the teacher's explicit-Close style.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.mgr.List() {
		h.mgr.Close(r.InternalID())
	}
	h.pump.Close()
}

// externalID remaps the built-in keyboard's internal id to 0 on the
// way out (spec.md §3).
func (h *Hub) externalID(internal int) int {
	if internal == h.mgr.BuiltinKeyboardID() && internal != devicemanager.VirtualKeyboardID {
		return externalBuiltinKeyboardID
	}
	return internal
}

// internalID reverses externalID: 0 means "the built-in keyboard",
// resolved to whatever internal id currently holds that role (or the
// "no built-in keyboard" sentinel).
func (h *Hub) internalID(external int) int {
	if external == externalBuiltinKeyboardID {
		return h.mgr.BuiltinKeyboardID()
	}
	return external
}

func (h *Hub) queueAdded(internalID int) {
	h.pendingSynthetic = append(h.pendingSynthetic, syntheticEvent(DeviceAdded, h.externalID(internalID)))
}

func (h *Hub) queueRemoved(internalID int) {
	h.pendingSynthetic = append(h.pendingSynthetic, syntheticEvent(DeviceRemoved, h.externalID(internalID)))
}

func (h *Hub) queueFinishedScan() {
	h.pendingSynthetic = append(h.pendingSynthetic, syntheticEvent(FinishedDeviceScan, 0))
}

func (h *Hub) drainSynthetic(buffer []RawEvent, capacity int) int {
	n := 0
	for n < capacity && len(h.pendingSynthetic) > 0 {
		buffer[n] = h.pendingSynthetic[0]
		h.pendingSynthetic = h.pendingSynthetic[1:]
		n++
	}
	return n
}

// GetEvents is the central blocking protocol (spec.md §4.7). It
// writes up to capacity events into buffer and returns how many were
// written. capacity = 0 returns 0 immediately without touching
// pending state (spec.md §8 boundary behaviour). It never returns an
// error: kernel-record and scan failures are logged and counted
// internally (spec.md §7).
func (h *Hub) GetEvents(timeoutMs int, buffer []RawEvent, capacity int) int {
	if capacity > len(buffer) {
		capacity = len(buffer)
	}
	if capacity <= 0 {
		return 0
	}

	h.mu.Lock()

	n := h.drainSynthetic(buffer, capacity)
	if n >= capacity {
		h.mu.Unlock()
		return n
	}

	for _, id := range h.mgr.TakePendingCloses() {
		h.mgr.Close(id)
		h.queueRemoved(id)
	}
	n += h.drainSynthetic(buffer[n:], capacity-n)
	if n >= capacity {
		h.mu.Unlock()
		return n
	}

	if h.mgr.ConsumeReopenPending() {
		for _, id := range h.mgr.CloseAllForReopen() {
			h.queueRemoved(id)
		}
	}
	n += h.drainSynthetic(buffer[n:], capacity-n)
	if n >= capacity {
		h.mu.Unlock()
		return n
	}

	if h.mgr.ConsumeScanPending() {
		added, err := h.mgr.ScanAll()
		if err != nil {
			h.logger.Error("eventhub: scan failed", "error", err)
		}
		for _, id := range added {
			h.queueAdded(id)
		}
		h.queueFinishedScan()
	}
	n += h.drainSynthetic(buffer[n:], capacity-n)
	if n >= capacity {
		h.mu.Unlock()
		return n
	}

	needWait := len(h.pendingBatch) == 0
	h.mu.Unlock()

	var batch []epollpump.Ready
	if needWait {
		var err error
		batch, err = h.pump.Wait(timeoutMs)
		if err != nil {
			h.logger.Error("eventhub: epoll wait failed", "error", err)
			return n
		}
		if len(batch) == 0 {
			return n
		}
	} else {
		h.mu.Lock()
		batch = h.pendingBatch
		h.pendingBatch = nil
		h.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, rd := range batch {
		if n >= capacity {
			h.pendingBatch = append(h.pendingBatch, batch[i:]...)
			return n
		}
		n += h.handleReady(rd, buffer[n:capacity])
	}

	if n > 0 {
		h.awake = true
	}
	return n
}

func (h *Hub) handleReady(rd epollpump.Ready, out []RawEvent) int {
	switch {
	case rd.IsWake:
		if _, err := h.pump.DrainWake(); err != nil {
			h.logger.Debug("eventhub: drain wake failed", "error", err)
		}
		return 0
	case rd.IsInotify:
		return h.handleInotify(out)
	default:
		if rec, ok := h.mgr.GetByFD(rd.FD); ok {
			return h.readDevice(rec, out)
		}
		if rec, ok := h.mgr.GetByVideoFD(rd.FD); ok {
			h.readVideo(rec)
			return 0
		}
		return 0
	}
}

func (h *Hub) handleInotify(out []RawEvent) int {
	events, err := h.pump.DrainInotify()
	if err != nil {
		h.logger.Error("eventhub: inotify read failed", "error", err)
		return 0
	}
	n := 0
	for _, ev := range events {
		dir, ok := h.pump.DirForWatch(ev.Wd)
		if !ok || ev.Name == "" {
			continue
		}
		path := filepath.Join(dir, ev.Name)
		switch {
		case ev.Mask&(hostio.InCreate|hostio.InMovedTo) != 0:
			rec, err := h.mgr.OpenDevice(path)
			if err != nil {
				h.logger.Warn("eventhub: opening discovered device failed", "path", path, "error", err)
				continue
			}
			if rec != nil && n < len(out) {
				out[n] = syntheticEvent(DeviceAdded, h.externalID(rec.InternalID()))
				n++
			} else if rec != nil {
				h.queueAdded(rec.InternalID())
			}
		case ev.Mask&(hostio.InDelete|hostio.InMovedFrom) != 0:
			if rec, ok := h.mgr.GetByPath(path); ok {
				id := rec.InternalID()
				h.mgr.CloseByPath(path)
				if n < len(out) {
					out[n] = syntheticEvent(DeviceRemoved, h.externalID(id))
					n++
				} else {
					h.queueRemoved(id)
				}
			}
		}
	}
	return n
}

func (h *Hub) readDevice(rec *device.Record, out []RawEvent) int {
	n := 0
	for n < len(out) {
		ev, err := h.io.ReadEvent(rec.FD)
		if err != nil {
			if hostio.IsEAGAIN(err) {
				break
			}
			h.droppedRecords++
			h.logger.Warn("eventhub: device read failed", "path", rec.Path, "error", err)
			h.mgr.ScheduleClose(rec.InternalID())
			break
		}
		applyStateMirror(rec, ev)
		out[n] = RawEvent{
			TimestampNs: ev.TimestampNs,
			DeviceID:    h.externalID(rec.InternalID()),
			Type:        ev.Type,
			Code:        ev.Code,
			Value:       ev.Value,
		}
		n++
	}
	return n
}

func (h *Hub) readVideo(rec *device.Record) {
	v := rec.Video
	if v == nil {
		return
	}
	for _, frame := range v.DrainFrames() {
		rec.PushVideoFrame(frame)
	}
}

func applyStateMirror(rec *device.Record, ev hostio.RawKernelEvent) {
	switch ev.Type {
	case 0x01: // EV_KEY
		rec.KeyState.Set(int(ev.Code), ev.Value != 0)
	case 0x05: // EV_SW
		rec.SwState.Set(int(ev.Code), ev.Value != 0)
	}
}

// GetVideoFrames returns and clears any frames accumulated for the
// touchscreen at deviceID since the prior call (spec.md §6).
func (h *Hub) GetVideoFrames(deviceID int) ([][]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.mgr.Get(h.internalID(deviceID))
	if !ok {
		return nil, newErr(KindNotFound, "get_video_frames", nil)
	}
	return rec.DrainVideoFrames(), nil
}

// Dump appends a human-readable state summary to sink (spec.md §6).
func (h *Hub) Dump(sink io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(sink, "eventhub: %d device(s), builtin_keyboard=%d, controllers_in_use=%d\n",
		len(h.mgr.List()), h.mgr.BuiltinKeyboardID(), h.pool.InUse())
	for _, r := range h.mgr.List() {
		fmt.Fprintf(sink, "  id=%d external_id=%d path=%q descriptor=%q classes=%s enabled=%t controller=%d\n",
			r.InternalID(), h.externalID(r.InternalID()), r.Path, r.Descriptor, r.Classes, r.IsEnabled(), r.ControllerNumber)
	}
	fmt.Fprintf(sink, "  unattached video devices: %d\n", h.mgr.UnattachedVideoCount())
	fmt.Fprintf(sink, "  dropped records: %d\n", h.droppedRecords)
	return nil
}

// Monitor performs a try-lock/release to let an external watchdog
// verify the hub lock is not stuck (spec.md §5 "monitor()" — the only
// introspection required for deadlock detection).
func (h *Hub) Monitor() bool {
	if !h.mu.TryLock() {
		return false
	}
	h.mu.Unlock()
	return true
}

// Wake causes a blocked GetEvents call to return promptly (spec.md
// §4.5/§5 "wake()"): safe to call from any thread, idempotent across
// multiple pending wakes, and lock-free: it only writes to the
// self-pipe, which GetEvents waits on after releasing the hub lock.
func (h *Hub) Wake() error {
	if err := h.pump.Wake(); err != nil {
		return newErr(KindIoError, "wake", err)
	}
	return nil
}

// RequestReopenAll marks every device for close-and-rescan on the next
// GetEvents turn (spec.md §4.6).
func (h *Hub) RequestReopenAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mgr.RequestReopenAll()
}

// Enable re-opens a disabled device (spec.md §4.6).
func (h *Hub) Enable(deviceID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.mgr.Enable(h.internalID(deviceID)); err != nil {
		return classifyManagerErr("enable", err)
	}
	return nil
}

// Disable closes a device's fd without dropping its record (spec.md §4.6).
func (h *Hub) Disable(deviceID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.mgr.Disable(h.internalID(deviceID)); err != nil {
		return classifyManagerErr("disable", err)
	}
	return nil
}

func classifyManagerErr(op string, err error) error {
	switch err {
	case devicemanager.ErrNotFound:
		return newErr(KindNotFound, op, err)
	case devicemanager.ErrAlreadyInState:
		return newErr(KindAlreadyInState, op, err)
	default:
		return newErr(KindIoError, op, err)
	}
}
