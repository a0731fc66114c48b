package ber

// Flag bits shared by command, group and field tokens.
const (
	// ErrorIndicator marks a token as an error or as carrying one.
	ErrorIndicator = 0x1000

	commandIDMask        = 0x3F
	commandAttributeFlag = 0x40

	groupAttributeFlag = 0x40

	fieldTypeFlag      = 0x40
	fieldAttributeFlag = 0x400
)

// CommandToken packs a command id.
func CommandToken(id uint32, attribute bool) uint32 {
	v := id & commandIDMask
	if attribute {
		v |= commandAttributeFlag
	}
	return v
}

// SplitCommand unpacks a command token.
func SplitCommand(v uint32) (id uint32, attribute, isError bool) {
	return v & commandIDMask, v&commandAttributeFlag != 0, v&ErrorIndicator != 0
}

// GroupToken packs a group id around the attribute and error bits.
func GroupToken(id uint32, attribute, isError bool) uint32 {
	v := id&0x3F | (id&0x7C0)<<1 | (id&^0x7FF)<<2
	if attribute {
		v |= groupAttributeFlag
	}
	if isError {
		v |= ErrorIndicator
	}
	return v
}

// SplitGroup unpacks a group token.
func SplitGroup(v uint32) (id uint32, attribute, isError bool) {
	id = v&0x3F | (v&0xF80)>>1 | (v&^0x1FFF)>>2
	return id, v&groupAttributeFlag != 0, v&ErrorIndicator != 0
}

// FieldFlags are the flag bits of a field token.
type FieldFlags struct {
	Typed     bool
	Attribute bool
	Error     bool
}

// FieldToken packs a field (element) id around the flag bits.
func FieldToken(id uint32, f FieldFlags) uint32 {
	v := id&0x3F | (id&0x1C0)<<1 | (id&0x200)<<2 | (id&^0x3FF)<<3
	if f.Typed {
		v |= fieldTypeFlag
	}
	if f.Attribute {
		v |= fieldAttributeFlag
	}
	if f.Error {
		v |= ErrorIndicator
	}
	return v
}

// SplitField unpacks a field token.
func SplitField(v uint32) (uint32, FieldFlags) {
	id := v&0x3F | (v&0x380)>>1 | (v&0x800)>>2 | (v&^0x1FFF)>>3
	return id, FieldFlags{
		Typed:     v&fieldTypeFlag != 0,
		Attribute: v&fieldAttributeFlag != 0,
		Error:     v&ErrorIndicator != 0,
	}
}

// ErrorToken packs an error id. Command-scope errors keep the low eleven
// bits in place; element-scope errors avoid the field type bit (6) and bit 11.
func ErrorToken(id uint32, commandScope bool) uint32 {
	var v uint32
	if commandScope {
		v = id&0x7FF | (id<<2)&^0x1FFF
	} else {
		v = id&0x3F | (id<<1)&0x780 | (id<<3)&^0x1FFF
	}
	return v | ErrorIndicator
}

// SplitError unpacks an error token.
func SplitError(v uint32, commandScope bool) uint32 {
	if commandScope {
		return v&0x7FF | (v&^0x1FFF)>>2
	}
	return v&0x3F | (v&0x780)>>1 | (v&^0x1FFF)>>3
}

// IsError reports whether a token carries the error indicator.
func IsError(v uint32) bool { return v&ErrorIndicator != 0 }
