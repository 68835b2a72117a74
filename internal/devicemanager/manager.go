// Package devicemanager implements spec.md §4.6: opening and closing
// devices, assigning stable descriptors and ids, pairing touchscreens
// with their video streams, and queuing the synthetic lifecycle events
// the EventLoop delivers to the consumer. Every exported method here
// is documented as running "under the hub lock" (spec.md §5) — this
// package does no locking of its own; the caller (the root eventhub
// package) serialises access with a single mutex, exactly as the
// original single-lock design requires.
package devicemanager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/inputhub/eventhub/internal/capability"
	"github.com/inputhub/eventhub/internal/config"
	"github.com/inputhub/eventhub/internal/controllerpool"
	"github.com/inputhub/eventhub/internal/devconfig"
	"github.com/inputhub/eventhub/internal/device"
	"github.com/inputhub/eventhub/internal/epollpump"
	"github.com/inputhub/eventhub/internal/hostio"
	"github.com/inputhub/eventhub/internal/keymap"
	"github.com/inputhub/eventhub/internal/videoregistry"
)

// gamepadNamePattern is the "known-gamepad pattern" spec.md §4.2
// leaves to the DeviceManager's policy: devices whose name or
// descriptor matches one of these substrings are offered a controller
// number.
var gamepadNamePattern = []string{"gamepad", "joystick", "controller", "joy-con", "dualshock", "dualsense", "xbox"}

// builtinKeyboardNone is the external sentinel spec.md §3 assigns when
// no built-in keyboard has been identified.
const builtinKeyboardNone = -2

// VirtualKeyboardID is the fixed internal/external id of the synthetic
// always-present keyboard (spec.md §3).
const VirtualKeyboardID = -1

// ErrNotFound mirrors spec.md §7's NotFound kind for an unknown id or path.
var ErrNotFound = errors.New("devicemanager: not found")

// ErrAlreadyInState mirrors spec.md §7's AlreadyInState advisory kind.
var ErrAlreadyInState = errors.New("devicemanager: already in that state")

// Manager owns the live device registry and the unattached video
// registry, and drives scan_all / open_device / close / enable /
// disable per spec.md §4.6.
type Manager struct {
	io        hostio.HostIO
	pump      *epollpump.Pump
	cfg       *config.Config
	pool      *controllerpool.Pool
	keyLoader *keymap.Loader
	videoReg  *videoregistry.Registry
	videoFac  videoregistry.Factory
	logger    *slog.Logger

	devices   map[int]*device.Record
	byPath    map[string]int
	byFD      map[int]int
	byVideoFD map[int]int

	descriptorCount map[string]int
	descriptorBase  map[int]string

	nextID int

	builtinKeyboardID int

	pendingScan   bool
	pendingReopen bool
	pendingClose  []int
}

// New builds a Manager with an empty registry. videoFac may be nil.
func New(io hostio.HostIO, pump *epollpump.Pump, cfg *config.Config, pool *controllerpool.Pool, keyLoader *keymap.Loader, videoReg *videoregistry.Registry, videoFac videoregistry.Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		io:                io,
		pump:              pump,
		cfg:               cfg,
		pool:              pool,
		keyLoader:         keyLoader,
		videoReg:          videoReg,
		videoFac:          videoFac,
		logger:            logger,
		devices:           make(map[int]*device.Record),
		byPath:            make(map[string]int),
		byFD:              make(map[int]int),
		byVideoFD:         make(map[int]int),
		descriptorCount:   make(map[string]int),
		descriptorBase:    make(map[int]string),
		nextID:            1,
		builtinKeyboardID: builtinKeyboardNone,
		pendingScan:       true, // startup scan (spec.md §4.7 step 2)
	}
}

// RequestReopenAll sets the flag that causes the next EventLoop turn
// to close every device and rescan (spec.md §4.6 request_reopen_all).
func (m *Manager) RequestReopenAll() {
	m.pendingReopen = true
}

// ConsumeReopenPending reports and clears the reopen-all flag.
func (m *Manager) ConsumeReopenPending() bool {
	v := m.pendingReopen
	m.pendingReopen = false
	if v {
		m.pendingScan = true
	}
	return v
}

// ConsumeScanPending reports and clears the pending-scan flag.
func (m *Manager) ConsumeScanPending() bool {
	v := m.pendingScan
	m.pendingScan = false
	return v
}

// RequestScan marks a fresh scan pending, e.g. on inotify discovery of
// a directory-level event the hub doesn't otherwise track per-path.
func (m *Manager) RequestScan() {
	m.pendingScan = true
}

// ScheduleClose marks id for close on the next close-flush (spec.md
// §4.7 step 1): used for inotify-delete and for read failures.
func (m *Manager) ScheduleClose(id int) {
	for _, p := range m.pendingClose {
		if p == id {
			return
		}
	}
	m.pendingClose = append(m.pendingClose, id)
}

// TakePendingCloses returns and clears the ids scheduled for close.
func (m *Manager) TakePendingCloses() []int {
	ids := m.pendingClose
	m.pendingClose = nil
	return ids
}

// Get returns the record for id, if open.
func (m *Manager) Get(id int) (*device.Record, bool) {
	r, ok := m.devices[id]
	return r, ok
}

// GetByPath returns the record currently open at path, if any.
func (m *Manager) GetByPath(path string) (*device.Record, bool) {
	id, ok := m.byPath[path]
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// GetByFD returns the record whose device descriptor is fd, if any.
func (m *Manager) GetByFD(fd int) (*device.Record, bool) {
	id, ok := m.byFD[fd]
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// GetByVideoFD returns the record whose paired video descriptor is fd, if any.
func (m *Manager) GetByVideoFD(fd int) (*device.Record, bool) {
	id, ok := m.byVideoFD[fd]
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// List returns every open record, including the virtual keyboard if enabled.
func (m *Manager) List() []*device.Record {
	out := make([]*device.Record, 0, len(m.devices))
	for _, r := range m.devices {
		out = append(out, r)
	}
	return out
}

// BuiltinKeyboardID returns the internal id of the built-in keyboard,
// or builtinKeyboardNone (-2) if none has been identified yet.
func (m *Manager) BuiltinKeyboardID() int {
	return m.builtinKeyboardID
}

// UnattachedVideoCount reports how many touch-video devices are
// currently waiting in the unattached registry, for dump() (spec.md §6).
func (m *Manager) UnattachedVideoCount() int {
	if m.videoReg == nil {
		return 0
	}
	return m.videoReg.Len()
}

// CloseAllForReopen closes every live device in preparation for a
// reopen-all cycle, returning their ids as DEVICE_REMOVED candidates.
// The caller is responsible for re-scanning immediately after.
func (m *Manager) CloseAllForReopen() []int {
	ids := make([]int, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	var closed []int
	for _, id := range ids {
		if r, ok := m.devices[id]; ok {
			m.closeRecord(r)
			closed = append(closed, id)
		}
	}
	return closed
}

// ScanAll enumerates the input and video directories, opens every
// non-excluded entry not already open, and returns the ids of newly
// added devices in discovery order (spec.md §4.6 scan_all).
func (m *Manager) ScanAll() ([]int, error) {
	var added []int

	if m.cfg.VirtualKeyboard {
		if _, ok := m.devices[VirtualKeyboardID]; !ok {
			m.installVirtualKeyboard()
			added = append(added, VirtualKeyboardID)
		}
	}

	inputDir := m.cfg.InputDirectory
	entries, err := os.ReadDir(inputDir)
	if err != nil && !os.IsNotExist(err) {
		return added, fmt.Errorf("devicemanager: scanning %s: %w", inputDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "event") {
			continue
		}
		path := filepath.Join(inputDir, entry.Name())
		if _, already := m.byPath[path]; already {
			continue
		}
		rec, err := m.OpenDevice(path)
		if err != nil {
			m.logger.Warn("devicemanager: opening device during scan failed", "path", path, "error", err)
			continue
		}
		if rec != nil {
			added = append(added, rec.InternalID())
		}
	}

	if m.videoFac != nil {
		videoEntries, err := os.ReadDir(m.cfg.VideoDirectory)
		if err == nil {
			for _, entry := range videoEntries {
				if entry.IsDir() || !strings.HasPrefix(entry.Name(), "v4l-touch") {
					continue
				}
				path := filepath.Join(m.cfg.VideoDirectory, entry.Name())
				m.openVideoDevice(path)
			}
		}
	}

	return added, nil
}

// openVideoDevice opens one video node via the configured factory and
// either pairs it immediately with an already-open touchscreen or
// leaves it in the unattached registry (spec.md §4.6 "Pairing").
func (m *Manager) openVideoDevice(path string) {
	dev, err := m.videoFac.Open(path)
	if err != nil {
		m.logger.Warn("devicemanager: opening video device failed", "path", path, "error", err)
		return
	}
	inputPath, err := dev.AssociatedInputPath()
	if err == nil {
		if rec, ok := m.GetByPath(inputPath); ok {
			rec.AttachVideo(dev)
			m.byVideoFD[dev.FD()] = rec.InternalID()
			if err := m.pump.RegisterFD(dev.FD()); err != nil {
				m.logger.Warn("devicemanager: registering video fd failed", "path", path, "error", err)
			}
			return
		}
	}
	m.videoReg.Add(dev)
}

// OpenDevice opens path non-blocking, runs capability probing, and on
// success installs a DeviceRecord (spec.md §4.6 open_device). Opening
// an excluded path is a silent no-op (spec.md §8 boundary behaviour);
// it returns (nil, nil), not an error.
func (m *Manager) OpenDevice(path string) (*device.Record, error) {
	if m.cfg.IsExcluded(path) {
		return nil, nil
	}
	if _, already := m.byPath[path]; already {
		return nil, nil
	}

	fd, err := m.io.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("devicemanager: opening %s: %w", path, err)
	}

	name, _ := m.io.DeviceName(fd)
	phys, _ := m.io.DevicePhys(fd)
	uniq, _ := m.io.DeviceUniq(fd)
	ident, err := m.io.DeviceID(fd)
	if err != nil {
		m.io.CloseFD(fd)
		return nil, fmt.Errorf("devicemanager: reading identity of %s: %w", path, err)
	}

	probe, err := capability.Probe(m.io, fd, name)
	if err != nil {
		m.io.CloseFD(fd)
		return nil, fmt.Errorf("devicemanager: probing %s: %w", path, err)
	}

	base := descriptorFor(name, phys, uniq, ident)
	descriptor := m.uniquifyDescriptor(base)

	rec := device.New(descriptor, path, fd, ident, name, phys, uniq, probe)

	if m.keyLoader != nil {
		kd, err := m.keyLoader.Resolve(descriptor)
		if err != nil {
			m.logger.Debug("devicemanager: keymap load failed", "descriptor", descriptor, "error", err)
		}
		rec.KeyMap = kd
	}

	if m.cfg.DeviceConfigDirectory != "" {
		dc, err := devconfig.Load(m.cfg.DeviceConfigDirectory, descriptor)
		if err != nil {
			m.logger.Debug("devicemanager: device config load failed", "descriptor", descriptor, "error", err)
		} else {
			if dc.Properties != nil {
				rec.Properties = dc.Properties
			}
			rec.LedOverride = dc.Led
		}
	}

	if isGamepadName(name) || isGamepadName(descriptor) {
		if n := m.pool.Acquire(); n > 0 {
			rec.ControllerNumber = n
		}
	}

	if err := m.pump.RegisterFD(fd); err != nil {
		m.io.CloseFD(fd)
		return nil, fmt.Errorf("devicemanager: registering %s with epoll: %w", path, err)
	}

	id := m.nextID
	m.nextID++
	rec.InternalIDValue = id
	m.devices[id] = rec
	m.byPath[path] = id
	m.byFD[fd] = id
	m.descriptorBase[id] = base

	if rec.Classes.Has(capability.Keyboard) && m.builtinKeyboardID == builtinKeyboardNone && !rec.External {
		m.builtinKeyboardID = id
	}

	if rec.Classes.Has(capability.Touch) {
		if vdev := m.videoReg.TakeForInput(path); vdev != nil {
			rec.AttachVideo(vdev)
			m.byVideoFD[vdev.FD()] = id
			if err := m.pump.RegisterFD(vdev.FD()); err != nil {
				m.logger.Warn("devicemanager: registering paired video fd failed", "path", path, "error", err)
			}
		}
	}

	return rec, nil
}

func (m *Manager) installVirtualKeyboard() {
	rec := device.New("virtual-keyboard", "", -1, hostio.DeviceIdent{}, "Virtual Keyboard", "", "", capability.Result{
		Classes: capability.Set(capability.Keyboard | capability.AlphaKey | capability.Virtual),
	})
	rec.InternalIDValue = VirtualKeyboardID
	m.devices[VirtualKeyboardID] = rec
	if m.builtinKeyboardID == builtinKeyboardNone {
		m.builtinKeyboardID = VirtualKeyboardID
	}
}

// CloseByPath unregisters, closes, and drops the record open at path
// (spec.md §4.6 close_by_path). Closing an already-closed path is a
// no-op (spec.md §8).
func (m *Manager) CloseByPath(path string) {
	id, ok := m.byPath[path]
	if !ok {
		return
	}
	if r, ok := m.devices[id]; ok {
		m.closeRecord(r)
	}
}

// Close unregisters, closes, and drops rec (spec.md §4.6 close).
// Closing an already-closed device is a no-op.
func (m *Manager) Close(id int) {
	r, ok := m.devices[id]
	if !ok {
		return
	}
	m.closeRecord(r)
}

func (m *Manager) closeRecord(r *device.Record) {
	if r.FD >= 0 {
		m.pump.UnregisterFD(r.FD)
		if err := m.io.CloseFD(r.FD); err != nil {
			m.logger.Debug("devicemanager: close fd failed", "path", r.Path, "error", err)
		}
		delete(m.byFD, r.FD)
	}
	if r.ControllerNumber != 0 {
		m.pool.Release(r.ControllerNumber)
	}
	if v := r.DetachVideo(); v != nil {
		m.pump.UnregisterFD(v.FD())
		delete(m.byVideoFD, v.FD())
		m.videoReg.Return(v)
	}
	delete(m.devices, r.InternalID())
	delete(m.byPath, r.Path)
	if base, ok := m.descriptorBase[r.InternalID()]; ok {
		if n := m.descriptorCount[base]; n <= 1 {
			delete(m.descriptorCount, base)
		} else {
			m.descriptorCount[base] = n - 1
		}
		delete(m.descriptorBase, r.InternalID())
	}
	if m.builtinKeyboardID == r.InternalID() {
		m.builtinKeyboardID = builtinKeyboardNone
	}
}

// Enable reopens a disabled device's descriptor (spec.md §4.6
// enable/disable). Enabling an already-enabled device returns
// ErrAlreadyInState (advisory, not fatal per spec.md §7).
func (m *Manager) Enable(id int) error {
	r, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	if r.IsEnabled() {
		return ErrAlreadyInState
	}
	fd, err := m.io.OpenDevice(r.Path)
	if err != nil {
		return fmt.Errorf("devicemanager: re-opening %s: %w", r.Path, err)
	}
	if err := m.pump.RegisterFD(fd); err != nil {
		m.io.CloseFD(fd)
		return fmt.Errorf("devicemanager: registering %s with epoll: %w", r.Path, err)
	}
	r.FD = fd
	r.SetEnabled(true)
	r.KeyStateSynced = false
	r.SwStateSynced = false
	r.LedStateSynced = false
	m.byFD[fd] = id
	return nil
}

// Disable closes a device's fd (dropping kernel subscriptions) without
// removing the record (spec.md §4.6). Disabling an already-disabled
// device returns ErrAlreadyInState.
func (m *Manager) Disable(id int) error {
	r, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	if !r.IsEnabled() {
		return ErrAlreadyInState
	}
	if r.FD >= 0 {
		m.pump.UnregisterFD(r.FD)
		if err := m.io.CloseFD(r.FD); err != nil {
			m.logger.Debug("devicemanager: disable close failed", "path", r.Path, "error", err)
		}
		delete(m.byFD, r.FD)
		r.FD = -1
	}
	r.SetEnabled(false)
	return nil
}

// uniquifyDescriptor suffixes base against the count of currently live
// records sharing it, so a device closed and later reopened (including
// via request_reopen_all) gets back its original, unsuffixed
// descriptor instead of accumulating a new suffix every cycle
// (spec.md §8 "with the original descriptors preserved"). The count is
// maintained in lockstep with closeRecord, not a monotonic total.
func (m *Manager) uniquifyDescriptor(base string) string {
	n := m.descriptorCount[base]
	m.descriptorCount[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

func descriptorFor(name, phys, uniq string, ident hostio.DeviceIdent) string {
	if uniq != "" {
		return fmt.Sprintf("%04x:%04x:%s", ident.Vendor, ident.Product, uniq)
	}
	if phys != "" {
		return fmt.Sprintf("%04x:%04x:%s", ident.Vendor, ident.Product, phys)
	}
	return fmt.Sprintf("%04x:%04x:%s", ident.Vendor, ident.Product, name)
}

func isGamepadName(s string) bool {
	s = strings.ToLower(s)
	for _, p := range gamepadNamePattern {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
