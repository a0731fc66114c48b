package rci

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Value is a decoded element value. Which field is meaningful depends on
// Type: string types, IPv4 and MAC addresses use Text; int32 uses Signed;
// unsigned, hex and enum types use Unsigned; float uses Float; on_off and
// boolean use Bool.
type Value struct {
	Type     schema.ElementType
	Text     string
	Signed   int32
	Unsigned uint32
	Float    float32
	Bool     bool
}

// Value errors.
var (
	ErrValueType   = errors.New("unsupported value type")
	ErrValueFormat = errors.New("malformed value")
)

// StringValue returns a value of a string-family type.
func StringValue(t schema.ElementType, s string) Value { return Value{Type: t, Text: s} }

// Int32Value returns an int32 value.
func Int32Value(v int32) Value { return Value{Type: schema.TypeInt32, Signed: v} }

// Uint32Value returns a value of an unsigned type.
func Uint32Value(t schema.ElementType, v uint32) Value { return Value{Type: t, Unsigned: v} }

// FloatValue returns a float value.
func FloatValue(v float32) Value { return Value{Type: schema.TypeFloat, Float: v} }

// BoolValue returns an on_off or boolean value.
func BoolValue(t schema.ElementType, v bool) Value { return Value{Type: t, Bool: v} }

// EnumValue returns an enum value by index.
func EnumValue(v uint32) Value { return Value{Type: schema.TypeEnum, Unsigned: v} }

// ZeroValue returns the value a NO_VALUE field decodes to.
func ZeroValue(t schema.ElementType) Value {
	v := Value{Type: t}
	switch t {
	case schema.TypeIPv4:
		v.Text = "0.0.0.0"
	case schema.TypeMACAddr:
		v.Text = "00:00:00:00:00:00"
	}
	return v
}

// Equal reports whether two values are the same.
func (v Value) Equal(o Value) bool { return v == o }

// String returns the display form of the value. Enum values are printed
// by index.
func (v Value) String() string { return v.Format(nil) }

// Format returns the display form of the value using the enum names.
func (v Value) Format(enum []string) string {
	switch v.Type {
	case schema.TypeInt32:
		return strconv.FormatInt(int64(v.Signed), 10)
	case schema.TypeUint32:
		return strconv.FormatUint(uint64(v.Unsigned), 10)
	case schema.TypeHex32:
		return strconv.FormatUint(uint64(v.Unsigned), 16)
	case schema.TypeXHex32:
		return "0x" + strconv.FormatUint(uint64(v.Unsigned), 16)
	case schema.TypeFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	case schema.TypeEnum:
		if int(v.Unsigned) < len(enum) {
			return enum[v.Unsigned]
		}
		return strconv.FormatUint(uint64(v.Unsigned), 10)
	case schema.TypeOnOff:
		if v.Bool {
			return "on"
		}
		return "off"
	case schema.TypeBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

// ParseValue converts a display form into a value of type t.
func ParseValue(t schema.ElementType, text string, enum []string) (Value, error) {
	text = strings.TrimSpace(text)
	v := Value{Type: t}
	switch {
	case t.IsString():
		v.Text = text
		return v, nil
	case t == schema.TypeInt32:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrValueFormat, err)
		}
		v.Signed = int32(n)
	case t == schema.TypeUint32:
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrValueFormat, err)
		}
		v.Unsigned = uint32(n)
	case t == schema.TypeHex32, t == schema.TypeXHex32:
		n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(text), "0x"), 16, 32)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrValueFormat, err)
		}
		v.Unsigned = uint32(n)
	case t == schema.TypeFloat:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrValueFormat, err)
		}
		v.Float = float32(f)
	case t == schema.TypeEnum:
		for i, name := range enum {
			if name == text {
				v.Unsigned = uint32(i)
				return v, nil
			}
		}
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil || (len(enum) > 0 && int(n) >= len(enum)) {
			return v, fmt.Errorf("%w: enum value %q", ErrValueFormat, text)
		}
		v.Unsigned = uint32(n)
	case t == schema.TypeOnOff:
		switch strings.ToLower(text) {
		case "on", "1":
			v.Bool = true
		case "off", "0", "":
		default:
			return v, fmt.Errorf("%w: on_off value %q", ErrValueFormat, text)
		}
	case t == schema.TypeBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrValueFormat, err)
		}
		v.Bool = b
	case t == schema.TypeIPv4:
		a, err := netip.ParseAddr(text)
		if err != nil || !a.Is4() {
			return v, fmt.Errorf("%w: ipv4 address %q", ErrValueFormat, text)
		}
		v.Text = a.String()
	case t == schema.TypeMACAddr:
		hw, err := net.ParseMAC(text)
		if err != nil || len(hw) != 6 {
			return v, fmt.Errorf("%w: mac address %q", ErrValueFormat, text)
		}
		v.Text = hw.String()
	default:
		return v, fmt.Errorf("%w: %s", ErrValueType, t)
	}
	return v, nil
}

// AppendValue appends the wire encoding of v.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	switch {
	case v.Type.IsString():
		return ber.AppendString(dst, v.Text), nil
	case v.Type.IsUnsigned():
		return ber.AppendUint(dst, uint64(v.Unsigned)), nil
	}
	switch v.Type {
	case schema.TypeInt32:
		return ber.AppendUint(dst, uint64(uint32(v.Signed))), nil
	case schema.TypeFloat:
		return ber.AppendUint(dst, uint64(math.Float32bits(v.Float))), nil
	case schema.TypeOnOff, schema.TypeBoolean:
		if v.Bool {
			return ber.AppendUint(dst, 1), nil
		}
		return ber.AppendUint(dst, 0), nil
	case schema.TypeIPv4:
		a, err := netip.ParseAddr(v.Text)
		if err != nil || !a.Is4() {
			return dst, fmt.Errorf("%w: ipv4 address %q", ErrValueFormat, v.Text)
		}
		b := a.As4()
		return ber.AppendBytes(dst, b[:]), nil
	case schema.TypeMACAddr:
		hw, err := net.ParseMAC(v.Text)
		if err != nil || len(hw) != 6 {
			return dst, fmt.Errorf("%w: mac address %q", ErrValueFormat, v.Text)
		}
		return ber.AppendBytes(dst, hw), nil
	}
	return dst, fmt.Errorf("%w: %s", ErrValueType, v.Type)
}

// ValueFromUint converts a decoded modifier into a value of a numeric type.
// It returns false for other types and for on_off/boolean values above 1.
func ValueFromUint(t schema.ElementType, u uint32) (Value, bool) {
	v := Value{Type: t}
	switch {
	case t.IsUnsigned():
		v.Unsigned = u
	case t == schema.TypeInt32:
		v.Signed = int32(u)
	case t == schema.TypeFloat:
		v.Float = math.Float32frombits(u)
	case t == schema.TypeOnOff, t == schema.TypeBoolean:
		if u > 1 {
			return v, false
		}
		v.Bool = u == 1
	default:
		return v, false
	}
	return v, true
}

// ValueFromBytes converts a decoded string into a value of a string-encoded
// type.
func ValueFromBytes(t schema.ElementType, b []byte) (Value, bool) {
	v := Value{Type: t}
	switch {
	case t.IsString():
		v.Text = string(b)
	case t == schema.TypeIPv4:
		if len(b) != 4 {
			return v, false
		}
		v.Text = netip.AddrFrom4([4]byte(b)).String()
	case t == schema.TypeMACAddr:
		if len(b) != 6 {
			return v, false
		}
		v.Text = net.HardwareAddr(b).String()
	default:
		return v, false
	}
	return v, true
}

// StringEncoded returns true for types whose wire form is a byte string.
func StringEncoded(t schema.ElementType) bool {
	return t.IsString() || t == schema.TypeIPv4 || t == schema.TypeMACAddr
}
