// Package videoregistry holds touch-video descriptors that have not
// yet been paired with a touchscreen DeviceRecord (spec.md §3, §4.6,
// §8 scenario S6). The touch-video frame decoder itself is out of
// scope (spec.md §1); only its descriptor lifecycle — open, associated
// input path, frame queue, close — is referenced here.
package videoregistry

import "sync"

// TouchVideoDevice is the abstract surface the Event Hub needs from a
// touch-video stream. Frame decoding is the out-of-scope collaborator;
// the hub only needs enough to pair it with an input device and drain
// its frame queue (spec.md §4.7 step 4 "Video fd", §6 get_video_frames).
type TouchVideoDevice interface {
	// Path is the video device node path (e.g. /dev/v4l-touch0).
	Path() string

	// AssociatedInputPath returns the /dev/input/eventN path this
	// video stream pairs with, per the host's sysfs convention
	// (spec.md §4.6 — "the specific mapping is part of the host
	// contract, not this spec").
	AssociatedInputPath() (string, error)

	// FD is the open descriptor to register with the epoll set.
	FD() int

	// DrainFrames returns and clears any frames queued since the last
	// call (FIFO), per spec.md §6 get_video_frames semantics.
	DrainFrames() [][]byte

	// PushFrame enqueues a decoded frame, dropping the oldest queued
	// frame if the bound is exceeded (spec.md §4.7 step 4).
	PushFrame(frame []byte)

	// Close releases the underlying descriptor.
	Close() error
}

// Factory opens a TouchVideoDevice for a path discovered under the
// video device directory. The actual frame decoder is out of scope
// (spec.md §1); a host integration supplies this factory. A nil
// factory means the hub simply never discovers video devices, which
// is a valid configuration (e.g. a host with no touch-video streams,
// or a test that drives video pairing directly via Registry.Add).
type Factory interface {
	Open(path string) (TouchVideoDevice, error)
}

// Registry holds video devices that exist but are not yet owned by any
// DeviceRecord. spec.md §3 invariant: a TouchVideoDevice is either in
// this registry or owned by exactly one DeviceRecord, never both.
type Registry struct {
	mu     sync.Mutex
	byPath map[string]TouchVideoDevice
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byPath: make(map[string]TouchVideoDevice)}
}

// Add places dev into the unattached pool.
func (r *Registry) Add(dev TouchVideoDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPath[dev.Path()] = dev
}

// TakeForInput removes and returns the video device whose
// AssociatedInputPath matches inputPath, if any is waiting. Called
// after a touchscreen is opened, to see if its video stream already
// arrived (spec.md §4.6 "Pairing").
func (r *Registry) TakeForInput(inputPath string) TouchVideoDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, dev := range r.byPath {
		assoc, err := dev.AssociatedInputPath()
		if err == nil && assoc == inputPath {
			delete(r.byPath, path)
			return dev
		}
	}
	return nil
}

// Return puts dev back into the unattached pool — used when a paired
// DeviceRecord is closed but the video stream is still live (spec.md
// §4.6 close_by_path: "detaches any paired video device back to the
// unattached registry if still streamable").
func (r *Registry) Return(dev TouchVideoDevice) {
	r.Add(dev)
}

// Remove drops dev from the pool without closing it (the caller has
// already taken ownership, e.g. via TakeForInput, or is closing it
// directly on inotify-delete).
func (r *Registry) Remove(path string) (TouchVideoDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.byPath[path]
	if ok {
		delete(r.byPath, path)
	}
	return dev, ok
}

// Len reports how many video devices are currently unattached, for dump().
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byPath)
}
