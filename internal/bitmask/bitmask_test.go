package bitmask

import "testing"

func TestSetAndTest(t *testing.T) {
	m := New(40)
	if m.Test(5) {
		t.Fatalf("expected bit 5 unset initially")
	}
	m.Set(5, true)
	if !m.Test(5) {
		t.Fatalf("expected bit 5 set")
	}
	m.Set(5, false)
	if m.Test(5) {
		t.Fatalf("expected bit 5 cleared")
	}
}

func TestTestOutOfRange(t *testing.T) {
	m := New(8)
	if m.Test(-1) || m.Test(8) || m.Test(100) {
		t.Fatalf("out-of-range Test should report false, not panic")
	}
	m.Set(-1, true)
	m.Set(100, true)
}

func TestLen(t *testing.T) {
	if New(17).Len() != 17 {
		t.Fatalf("Len should return constructed width")
	}
	if New(-3).Len() != 0 {
		t.Fatalf("negative width should clamp to 0")
	}
}

func TestAny(t *testing.T) {
	m := New(64)
	m.Set(40, true)

	ok, err := m.Any(0, 32)
	if err != nil || ok {
		t.Fatalf("Any(0,32) = %v, %v; want false, nil", ok, err)
	}
	ok, err = m.Any(32, 64)
	if err != nil || !ok {
		t.Fatalf("Any(32,64) = %v, %v; want true, nil", ok, err)
	}
	ok, err = m.Any(39, 41)
	if err != nil || !ok {
		t.Fatalf("Any(39,41) = %v, %v; want true, nil", ok, err)
	}

	if _, err := m.Any(10, 10); err == nil {
		t.Fatalf("empty range should error")
	}
	if _, err := m.Any(-1, 10); err == nil {
		t.Fatalf("out-of-bounds low should error")
	}
	if _, err := m.Any(0, 1000); err == nil {
		t.Fatalf("out-of-bounds high should error")
	}
}

func TestLoadFromBuffer(t *testing.T) {
	m := New(40)
	buf := []byte{0xff, 0x00, 0x00, 0x00, 0x01}
	m.LoadFromBuffer(buf)

	for i := 0; i < 8; i++ {
		if !m.Test(i) {
			t.Fatalf("bit %d should be set from first byte 0xff", i)
		}
	}
	for i := 8; i < 32; i++ {
		if m.Test(i) {
			t.Fatalf("bit %d should be unset", i)
		}
	}
	if !m.Test(32) {
		t.Fatalf("bit 32 should be set from trailing short word")
	}
}

func TestLoadFromBufferShorterThanWords(t *testing.T) {
	m := New(64)
	m.LoadFromBuffer([]byte{0xff})
	if !m.Test(0) || m.Test(8) {
		t.Fatalf("unexpected bits from single-byte buffer")
	}
	if m.Test(40) {
		t.Fatalf("words beyond buffer should remain zero")
	}
}
