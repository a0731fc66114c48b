package ber

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Modifier layout constants.
const (
	AlternateFlag    = 0x80
	SizeModifierMask = 0x60
	SizeModifierBits = 5

	sizeOneByte   = 0x00 // 100xxxxx: 13-bit value
	sizeMultiByte = 0x01 // 101000ss: 2/4/8 trailing bytes
	sizeReserved  = 0x02 // 110xxxxx
	sizeSpecial   = 0x03 // 111xxxxx

	multiFollowMask   = 0x03
	multiReservedMask = 0x1C

	// NoValue is the special modifier that stands for an absent value.
	NoValue byte = 0xE0

	// Terminator is the special modifier that closes a level.
	Terminator byte = 0xE1

	maxInline  = 0x7F
	max13Bit   = 0x1FFF
	max16Bit   = 0xFFFF
	max32Bit   = 0xFFFFFFFF
	maxModSize = 9
)

// Codec errors.
var (
	ErrShortBuffer  = errors.New("ber: short buffer")
	ErrReserved     = errors.New("ber: reserved modifier")
	ErrUnexpected   = errors.New("ber: unexpected special value")
	ErrValueTooWide = errors.New("ber: value does not fit")
)

// Kind distinguishes ordinary values from the special sentinels.
type Kind uint8

// Modifier kinds.
const (
	KindValue Kind = iota
	KindNoValue
	KindTerminator
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "VALUE"
	case KindNoValue:
		return "NO_VALUE"
	case KindTerminator:
		return "TERMINATOR"
	default:
		return "UNKNOWN"
	}
}

// Modifier is a decoded variable-length value.
type Modifier struct {
	Kind  Kind
	Value uint64

	// Size is the number of bytes the modifier occupied.
	Size int
}

// IsTerminator reports whether the modifier is the TERMINATOR sentinel.
func (m Modifier) IsTerminator() bool { return m.Kind == KindTerminator }

// IsNoValue reports whether the modifier is the NO_VALUE sentinel.
func (m Modifier) IsNoValue() bool { return m.Kind == KindNoValue }

// ModifierSize returns the total encoded size announced by a first byte.
func ModifierSize(first byte) (int, error) {
	if first&AlternateFlag == 0 {
		return 1, nil
	}
	switch (first & SizeModifierMask) >> SizeModifierBits {
	case sizeOneByte:
		return 2, nil
	case sizeMultiByte:
		if first&multiReservedMask != 0 {
			break
		}
		switch first & multiFollowMask {
		case 0:
			return 3, nil
		case 1:
			return 5, nil
		case 2:
			return 9, nil
		}
		return 0, fmt.Errorf("%w: 0x%02x", ErrReserved, first)
	case sizeSpecial:
		if first == NoValue || first == Terminator {
			return 1, nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%02x", ErrReserved, first)
}

// DecodeModifier decodes one modifier from the start of b.
//
// If b holds fewer bytes than the modifier needs, the error is ErrShortBuffer
// and the returned Size is the full size required.
func DecodeModifier(b []byte) (Modifier, error) {
	if len(b) == 0 {
		return Modifier{Size: 1}, ErrShortBuffer
	}
	size, err := ModifierSize(b[0])
	if err != nil {
		return Modifier{}, err
	}
	if len(b) < size {
		return Modifier{Size: size}, ErrShortBuffer
	}

	m := Modifier{Kind: KindValue, Size: size}
	switch size {
	case 1:
		switch b[0] {
		case NoValue:
			m.Kind = KindNoValue
		case Terminator:
			m.Kind = KindTerminator
		default:
			m.Value = uint64(b[0])
		}
	case 2:
		m.Value = uint64(b[0]&0x1F)<<8 | uint64(b[1])
	case 3:
		m.Value = uint64(binary.BigEndian.Uint16(b[1:3]))
	case 5:
		m.Value = uint64(binary.BigEndian.Uint32(b[1:5]))
	case 9:
		m.Value = binary.BigEndian.Uint64(b[1:9])
	}
	return m, nil
}

// DecodeUint32 decodes a modifier that must carry an ordinary value no wider
// than 32 bits.
func DecodeUint32(b []byte) (uint32, int, error) {
	m, err := DecodeModifier(b)
	if err != nil {
		return 0, m.Size, err
	}
	if m.Kind != KindValue {
		return 0, m.Size, fmt.Errorf("%w: %s", ErrUnexpected, m.Kind)
	}
	if m.Value > max32Bit {
		return 0, m.Size, ErrValueTooWide
	}
	return uint32(m.Value), m.Size, nil
}

// UintSize returns the number of bytes AppendUint uses for v.
func UintSize(v uint64) int {
	switch {
	case v <= maxInline:
		return 1
	case v <= max13Bit:
		return 2
	case v <= max16Bit:
		return 3
	case v <= max32Bit:
		return 5
	default:
		return maxModSize
	}
}

// AppendUint appends the shortest modifier encoding of v.
func AppendUint(dst []byte, v uint64) []byte {
	switch UintSize(v) {
	case 1:
		return append(dst, byte(v))
	case 2:
		return append(dst, AlternateFlag|byte(v>>8), byte(v))
	case 3:
		dst = append(dst, AlternateFlag|sizeMultiByte<<SizeModifierBits)
		return binary.BigEndian.AppendUint16(dst, uint16(v))
	case 5:
		dst = append(dst, AlternateFlag|sizeMultiByte<<SizeModifierBits|1)
		return binary.BigEndian.AppendUint32(dst, uint32(v))
	default:
		dst = append(dst, AlternateFlag|sizeMultiByte<<SizeModifierBits|2)
		return binary.BigEndian.AppendUint64(dst, v)
	}
}

// AppendTerminator appends the TERMINATOR sentinel.
func AppendTerminator(dst []byte) []byte { return append(dst, Terminator) }

// AppendNoValue appends the NO_VALUE sentinel.
func AppendNoValue(dst []byte) []byte { return append(dst, NoValue) }
