package ber

import (
	"errors"
	"fmt"
)

// ErrAttributeRange is returned for values an attribute token cannot carry.
var ErrAttributeRange = errors.New("ber: attribute value out of range")

// AttributeType selects the meaning of an attribute token.
type AttributeType uint8

// Attribute token types, stored in bits 5-6.
const (
	AttributeNormal AttributeType = 0x00
	AttributeIndex  AttributeType = 0x20
	AttributeName   AttributeType = 0x40
	AttributeCount  AttributeType = 0x60
)

const (
	attributeTypeMask  = 0x60
	attributeLowMask   = 0x1F
	attributeHighMask  = 0x7F80
	attributeHighShift = 2
	attributeNormalMax = 0x0F
)

// String returns the attribute type name.
func (t AttributeType) String() string {
	switch t {
	case AttributeNormal:
		return "NORMAL"
	case AttributeIndex:
		return "INDEX"
	case AttributeName:
		return "NAME"
	case AttributeCount:
		return "COUNT"
	default:
		return "UNKNOWN"
	}
}

// Attribute is a decoded attribute token.
//
// For AttributeName the value is the key length; the key follows the token.
// For AttributeNormal the value is the number of (id, value) pairs that
// follow.
type Attribute struct {
	Type  AttributeType
	Value uint32
}

// EncodeAttribute packs an attribute token. Values above 0x1F wrap around the
// type bits. Values the token cannot carry are refused with ErrAttributeRange.
func EncodeAttribute(t AttributeType, value uint32) (uint32, error) {
	if !FitsAttribute(t, value) {
		return 0, fmt.Errorf("%w: %s %d", ErrAttributeRange, t, value)
	}
	if value > attributeLowMask {
		return value&attributeLowMask | uint32(t) | (value<<attributeHighShift)&attributeHighMask, nil
	}
	return uint32(t) | value, nil
}

// FitsAttribute reports whether value can be carried by a token of type t.
func FitsAttribute(t AttributeType, value uint32) bool {
	if t == AttributeNormal {
		return value <= attributeNormalMax
	}
	return value <= MaxAttributeValue
}

// DecodeAttribute unpacks an attribute token.
func DecodeAttribute(token uint32) Attribute {
	a := Attribute{Type: AttributeType(token & attributeTypeMask)}
	if a.Type == AttributeNormal {
		a.Value = token & attributeNormalMax
		return a
	}
	if token&^attributeLowMask&^attributeTypeMask != 0 {
		a.Value = (token&attributeHighMask)>>attributeHighShift | token&attributeLowMask
	} else {
		a.Value = token & attributeLowMask
	}
	return a
}

// MaxAttributeValue is the largest value an attribute token can carry.
const MaxAttributeValue = attributeHighMask>>attributeHighShift | attributeLowMask

// AppendAttribute appends an encoded attribute token.
func AppendAttribute(dst []byte, t AttributeType, value uint32) ([]byte, error) {
	tok, err := EncodeAttribute(t, value)
	if err != nil {
		return dst, err
	}
	return AppendUint(dst, uint64(tok)), nil
}
