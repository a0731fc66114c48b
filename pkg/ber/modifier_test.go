package ber

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestAppendUintRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		size  int
	}{
		{"zero", 0, 1},
		{"inline max", 0x7F, 1},
		{"13-bit min", 0x80, 2},
		{"13-bit max", 0x1FFF, 2},
		{"16-bit min", 0x2000, 3},
		{"16-bit max", 0xFFFF, 3},
		{"32-bit min", 0x10000, 5},
		{"32-bit max", math.MaxUint32, 5},
		{"64-bit min", math.MaxUint32 + 1, 9},
		{"64-bit max", math.MaxUint64, 9},
		{"terminator lookalike", 0xE1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := AppendUint(nil, tt.value)
			if len(enc) != tt.size {
				t.Fatalf("encoded size = %d, want %d (% x)", len(enc), tt.size, enc)
			}
			if UintSize(tt.value) != tt.size {
				t.Errorf("UintSize = %d, want %d", UintSize(tt.value), tt.size)
			}

			m, err := DecodeModifier(enc)
			if err != nil {
				t.Fatalf("DecodeModifier failed: %v", err)
			}
			if m.Kind != KindValue {
				t.Errorf("kind = %s, want VALUE", m.Kind)
			}
			if m.Value != tt.value {
				t.Errorf("value = %d, want %d", m.Value, tt.value)
			}
			if m.Size != tt.size {
				t.Errorf("size = %d, want %d", m.Size, tt.size)
			}
		})
	}
}

func TestDecodeModifierSpecials(t *testing.T) {
	m, err := DecodeModifier([]byte{Terminator})
	if err != nil || !m.IsTerminator() {
		t.Errorf("terminator: got %+v, %v", m, err)
	}
	m, err = DecodeModifier([]byte{NoValue})
	if err != nil || !m.IsNoValue() {
		t.Errorf("no value: got %+v, %v", m, err)
	}

	for _, b := range []byte{0xC0, 0xDF, 0xE2, 0xFF, 0xA3, 0xA4, 0xA5, 0xA8, 0xB0, 0xBF} {
		if _, err := DecodeModifier([]byte{b, 0, 0, 0, 0, 0, 0, 0, 0}); !errors.Is(err, ErrReserved) {
			t.Errorf("0x%02x: expected ErrReserved, got %v", b, err)
		}
	}
}

func TestDecodeModifierShortBuffer(t *testing.T) {
	enc := AppendUint(nil, math.MaxUint32)
	for n := 0; n < len(enc); n++ {
		m, err := DecodeModifier(enc[:n])
		if !errors.Is(err, ErrShortBuffer) {
			t.Fatalf("prefix %d: expected ErrShortBuffer, got %v", n, err)
		}
		if m.Size != len(enc) && n > 0 {
			t.Errorf("prefix %d: need = %d, want %d", n, m.Size, len(enc))
		}
	}
}

func TestDecodeUint32RejectsSpecials(t *testing.T) {
	if _, _, err := DecodeUint32([]byte{Terminator}); !errors.Is(err, ErrUnexpected) {
		t.Errorf("expected ErrUnexpected, got %v", err)
	}
	enc := AppendUint(nil, math.MaxUint32+1)
	if _, _, err := DecodeUint32(enc); !errors.Is(err, ErrValueTooWide) {
		t.Errorf("expected ErrValueTooWide, got %v", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	long := string(bytes.Repeat([]byte("a"), 300))
	for _, s := range []string{"", "x", "hello world", "quote \" and \\ slash", "utf8 ✓", long} {
		enc := AppendString(nil, s)
		if len(enc) != StringSize(len(s)) {
			t.Errorf("StringSize(%d) = %d, encoded %d", len(s), StringSize(len(s)), len(enc))
		}
		got, n, err := DecodeString(enc)
		if err != nil {
			t.Fatalf("DecodeString(%q) failed: %v", s, err)
		}
		if string(got) != s || n != len(enc) {
			t.Errorf("DecodeString = %q (%d), want %q (%d)", got, n, s, len(enc))
		}
	}
}

func TestDecodeStringShortBuffer(t *testing.T) {
	enc := AppendString(nil, string(bytes.Repeat([]byte("b"), 200)))

	_, need, err := DecodeString(enc[:1])
	if !errors.Is(err, ErrShortBuffer) || need != 2 {
		t.Errorf("prefix only: need = %d, err = %v", need, err)
	}
	_, need, err = DecodeString(enc[:10])
	if !errors.Is(err, ErrShortBuffer) || need != len(enc) {
		t.Errorf("partial payload: need = %d, want %d, err = %v", need, len(enc), err)
	}
}
