// Package bitmask implements a fixed-width bit array sized at
// construction time, loaded from raw kernel capability buffers
// (EVIOCGBIT and friends return exactly this shape: one bit per code,
// packed little-endian into 32-bit words).
package bitmask

import (
	"encoding/binary"
	"fmt"
)

// BitMask is a fixed-width array of bits backed by 32-bit words. It
// never reallocates after construction.
type BitMask struct {
	words []uint32
	bits  int
}

// New allocates a BitMask wide enough to hold bits entries, all unset.
func New(bits int) *BitMask {
	if bits < 0 {
		bits = 0
	}
	return &BitMask{
		words: make([]uint32, (bits+31)/32),
		bits:  bits,
	}
}

// Len returns the width the mask was constructed with.
func (m *BitMask) Len() int {
	return m.bits
}

// Test reports whether bit i is set. It returns false for any i outside
// [0, Len()) rather than panicking, since capability width varies by
// evdev domain and callers frequently probe past a device's advertised
// range.
func (m *BitMask) Test(i int) bool {
	if i < 0 || i >= m.bits {
		return false
	}
	return m.words[i/32]&(1<<uint(i%32)) != 0
}

// Any reports whether any bit in the half-open range [lo, hi) is set.
// It returns an error, with a false result, when the range is empty or
// out of bounds.
func (m *BitMask) Any(lo, hi int) (bool, error) {
	if lo >= hi {
		return false, fmt.Errorf("bitmask: empty or inverted range [%d, %d)", lo, hi)
	}
	if lo < 0 || hi > m.bits {
		return false, fmt.Errorf("bitmask: range [%d, %d) out of bounds for width %d", lo, hi, m.bits)
	}

	firstWord := lo / 32
	lastWord := (hi - 1) / 32

	for w := firstWord; w <= lastWord; w++ {
		word := m.words[w]
		if w == firstWord {
			word &^= (1 << uint(lo%32)) - 1
		}
		if w == lastWord {
			shift := uint((hi - 1) % 32)
			if shift < 31 {
				word &= (1 << (shift + 1)) - 1
			}
		}
		if word != 0 {
			return true, nil
		}
	}
	return false, nil
}

// LoadFromBuffer copies a raw little-endian kernel ioctl result (as
// returned by EVIOCGBIT, EVIOCGKEY, EVIOCGSW, EVIOCGLED, EVIOCGPROP)
// into the mask's word array. Trailing bytes beyond the mask's width
// are ignored; a short buffer fills only the words it covers.
func (m *BitMask) LoadFromBuffer(buf []byte) {
	n := len(m.words)
	for w := 0; w < n; w++ {
		off := w * 4
		if off >= len(buf) {
			break
		}
		end := off + 4
		if end > len(buf) {
			var tail [4]byte
			copy(tail[:], buf[off:])
			m.words[w] = binary.LittleEndian.Uint32(tail[:])
			break
		}
		m.words[w] = binary.LittleEndian.Uint32(buf[off:end])
	}
}

// Set sets or clears bit i, for callers that need to mutate a single
// bit directly (live key/switch-state mirrors). An i outside [0, Len())
// is ignored.
func (m *BitMask) Set(i int, v bool) {
	if i < 0 || i >= m.bits {
		return
	}
	if v {
		m.words[i/32] |= 1 << uint(i%32)
	} else {
		m.words[i/32] &^= 1 << uint(i%32)
	}
}
