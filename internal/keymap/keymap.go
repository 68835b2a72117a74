// Package keymap resolves and layers key-character maps for a device,
// following spec.md §4.4. Parsing of the underlying key-layout /
// key-character-map file format is out of scope for the Event Hub
// (spec.md §1); only the CharacterMapParser abstraction is referenced,
// exactly as the original component boundary requires. Loading and
// layering the teacher's YAML-backed approach (internal/config,
// internal/mappings in the teacher repo) is adapted here to the
// device-identifier keyed lookup spec.md describes.
package keymap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by MapKey when no mapping exists for the
// requested code — non-fatal per spec.md §4.4. GetKeyCharacterMap
// returns no error; it yields an empty map instead.
var ErrNotFound = errors.New("keymap: not found")

// CharacterMap is the abstract parser interface spec.md §1 references
// without specifying: something that turns a key-layout file plus a
// key-character-map file into scancode -> keycode and keycode -> rune
// lookups. The Event Hub never implements a concrete file format
// itself; DefaultParser below is a minimal YAML-backed stand-in
// sufficient for tests and for hosts that don't supply their own.
type CharacterMap interface {
	// Map resolves an evdev key code to a logical key code. ok is
	// false when the map has no entry for code.
	Map(code uint16) (keyCode uint16, ok bool)

	// Character resolves a key code (optionally shifted) to the
	// character it produces. ok is false when there is no mapping.
	Character(keyCode uint16, shifted bool) (r rune, ok bool)
}

// CharacterMapParser loads a CharacterMap from one file path. Loader
// builds that path from the device descriptor, or from the generic
// map's name as a fallback (spec.md §4.4).
type CharacterMapParser interface {
	Load(path string) (CharacterMap, error)
}

// staticMap is the DefaultParser's CharacterMap implementation: three
// plain maps loaded from YAML.
type staticMap struct {
	KeyCodes  map[uint16]uint16        `yaml:"key_codes"`
	Chars     map[uint16]string        `yaml:"chars"`
	ShiftChars map[uint16]string       `yaml:"shift_chars"`
}

func (m *staticMap) Map(code uint16) (uint16, bool) {
	kc, ok := m.KeyCodes[code]
	return kc, ok
}

func (m *staticMap) Character(keyCode uint16, shifted bool) (rune, bool) {
	table := m.Chars
	if shifted {
		table = m.ShiftChars
	}
	s, ok := table[keyCode]
	if !ok || s == "" {
		return 0, false
	}
	return []rune(s)[0], true
}

// DefaultParser loads a staticMap from a YAML file: {key_codes: {<evdev
// code>: <logical code>}, chars: {<logical code>: "a"}, shift_chars:
// {...}}. It mirrors the teacher's mappings.LoadLayout: read file, then
// yaml.Unmarshal.
type DefaultParser struct{}

func (DefaultParser) Load(path string) (CharacterMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keymap: reading %s: %w", path, err)
	}
	m := &staticMap{
		KeyCodes:   make(map[uint16]uint16),
		Chars:      make(map[uint16]string),
		ShiftChars: make(map[uint16]string),
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("keymap: parsing %s: %w", path, err)
	}
	return m, nil
}

// overlayMap layers an overlay CharacterMap over a base one: queries
// check the overlay first, then fall back to the base (spec.md §4.4,
// "queries see the overlay first, then the combined base map").
type overlayMap struct {
	overlay CharacterMap
	base    CharacterMap
}

func (m *overlayMap) Map(code uint16) (uint16, bool) {
	if m.overlay != nil {
		if kc, ok := m.overlay.Map(code); ok {
			return kc, true
		}
	}
	if m.base != nil {
		return m.base.Map(code)
	}
	return 0, false
}

func (m *overlayMap) Character(keyCode uint16, shifted bool) (rune, bool) {
	if m.overlay != nil {
		if r, ok := m.overlay.Character(keyCode, shifted); ok {
			return r, true
		}
	}
	if m.base != nil {
		return m.base.Character(keyCode, shifted)
	}
	return 0, false
}

// Loader resolves and layers key-character maps by device descriptor,
// falling back to a generic map when no device-specific one is found.
type Loader struct {
	parser      CharacterMapParser
	layoutDir   string
	genericName string
}

// NewLoader creates a Loader that resolves "<layoutDir>/<descriptor>.yaml",
// falling back to "<layoutDir>/<genericName>.yaml" when no
// descriptor-specific file exists.
func NewLoader(parser CharacterMapParser, layoutDir, genericName string) *Loader {
	if parser == nil {
		parser = DefaultParser{}
	}
	return &Loader{parser: parser, layoutDir: layoutDir, genericName: genericName}
}

// Device holds a device's resolved key-character map plus any
// runtime-injected overlay. A Device with a nil base and nil overlay
// is valid and usable: all queries simply miss (spec.md §4.4, "Failure
// to load is non-fatal").
type Device struct {
	loader  *Loader
	base    CharacterMap
	overlay CharacterMap
	view    CharacterMap
}

// Resolve loads the base map for descriptor, falling back to the
// generic map. Load failures are swallowed into a usable-but-empty
// Device, matching spec.md §4.4's non-fatal policy; callers that care
// can inspect the returned error for logging.
func (l *Loader) Resolve(descriptor string) (*Device, error) {
	d := &Device{loader: l}

	base, err := l.parser.Load(filepath.Join(l.layoutDir, descriptor+".yaml"))
	if err != nil {
		base, err = l.parser.Load(filepath.Join(l.layoutDir, l.genericName+".yaml"))
	}
	d.base = base
	d.rebuild()
	return d, err
}

func (d *Device) rebuild() {
	d.view = &overlayMap{overlay: d.overlay, base: d.base}
}

// SetOverlay installs a runtime-injected overlay map on top of the
// base map; pass nil to clear it.
func (d *Device) SetOverlay(overlay CharacterMap) {
	d.overlay = overlay
	d.rebuild()
}

// MapKey resolves an evdev key code to a logical key code.
func (d *Device) MapKey(code uint16) (uint16, error) {
	if d.view == nil {
		return 0, ErrNotFound
	}
	kc, ok := d.view.Map(code)
	if !ok {
		return 0, ErrNotFound
	}
	return kc, nil
}

// GetKeyCharacterMap returns the effective character map (overlay
// layered over base); returns an empty map, never nil, when nothing
// loaded.
func (d *Device) GetKeyCharacterMap() CharacterMap {
	if d.view == nil {
		return &staticMap{}
	}
	return d.view
}
