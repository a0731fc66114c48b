package ber

import "fmt"

// DecodeString decodes a length-prefixed byte string from the start of b.
//
// The returned slice aliases b. On ErrShortBuffer the returned size is the
// number of bytes known to be required so far: the length prefix alone until
// it is complete, then prefix plus payload.
func DecodeString(b []byte) ([]byte, int, error) {
	m, err := DecodeModifier(b)
	if err != nil {
		return nil, m.Size, err
	}
	if m.Kind != KindValue {
		return nil, m.Size, fmt.Errorf("%w: %s", ErrUnexpected, m.Kind)
	}
	if m.Value > max32Bit {
		return nil, m.Size, ErrValueTooWide
	}
	total := m.Size + int(m.Value)
	if len(b) < total {
		return nil, total, ErrShortBuffer
	}
	return b[m.Size:total], total, nil
}

// StringSize returns the encoded size of a string of length n.
func StringSize(n int) int {
	return UintSize(uint64(n)) + n
}

// AppendString appends s with its length prefix.
func AppendString(dst []byte, s string) []byte {
	dst = AppendUint(dst, uint64(len(s)))
	return append(dst, s...)
}

// AppendBytes appends b with its length prefix.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendUint(dst, uint64(len(b)))
	return append(dst, b...)
}
