package schema

// ElementType is the wire type of a leaf element. The numeric values are the
// type codes carried in field type tokens.
type ElementType uint8

const (
	TypeNone            ElementType = 0
	TypeString          ElementType = 1
	TypeMultilineString ElementType = 2
	TypePassword        ElementType = 3
	TypeInt32           ElementType = 4
	TypeUint32          ElementType = 5
	TypeHex32           ElementType = 6
	TypeXHex32          ElementType = 7
	TypeFloat           ElementType = 8
	TypeEnum            ElementType = 9
	TypeOnOff           ElementType = 11
	TypeBoolean         ElementType = 12
	TypeIPv4            ElementType = 13
	TypeFQDNv4          ElementType = 14
	TypeFQDNv6          ElementType = 15
	TypeList            ElementType = 17
	TypeMACAddr         ElementType = 21
	TypeDatetime        ElementType = 22
	TypeRefEnum         ElementType = 23
)

var elementTypeNames = map[ElementType]string{
	TypeString:          "string",
	TypeMultilineString: "multiline_string",
	TypePassword:        "password",
	TypeInt32:           "int32",
	TypeUint32:          "uint32",
	TypeHex32:           "hex32",
	TypeXHex32:          "0x_hex32",
	TypeFloat:           "float",
	TypeEnum:            "enum",
	TypeOnOff:           "on_off",
	TypeBoolean:         "boolean",
	TypeIPv4:            "ipv4",
	TypeFQDNv4:          "fqdnv4",
	TypeFQDNv6:          "fqdnv6",
	TypeList:            "list",
	TypeMACAddr:         "mac_addr",
	TypeDatetime:        "datetime",
	TypeRefEnum:         "ref_enum",
}

// String returns the schema name of the type.
func (t ElementType) String() string {
	if s, ok := elementTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsValid returns true if the type is a known element type.
func (t ElementType) IsValid() bool {
	_, ok := elementTypeNames[t]
	return ok
}

// IsString returns true for types carried as length-prefixed strings.
func (t ElementType) IsString() bool {
	switch t {
	case TypeString, TypeMultilineString, TypePassword, TypeFQDNv4, TypeFQDNv6,
		TypeDatetime, TypeRefEnum:
		return true
	}
	return false
}

// IsUnsigned returns true for types carried as plain unsigned modifiers.
func (t ElementType) IsUnsigned() bool {
	switch t {
	case TypeUint32, TypeHex32, TypeXHex32, TypeEnum:
		return true
	}
	return false
}

// ParseElementType returns the type with the given schema name.
func ParseElementType(name string) (ElementType, bool) {
	for t, s := range elementTypeNames {
		if s == name {
			return t, true
		}
	}
	return TypeNone, false
}

// Access controls which commands may touch an element.
type Access uint8

const (
	AccessReadOnly Access = iota
	AccessWriteOnly
	AccessReadWrite
)

// String returns the access name.
func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "read_only"
	case AccessWriteOnly:
		return "write_only"
	case AccessReadWrite:
		return "read_write"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known access value.
func (a Access) IsValid() bool { return a <= AccessReadWrite }

// CanRead returns true if queries may return the element.
func (a Access) CanRead() bool { return a != AccessWriteOnly }

// CanWrite returns true if sets may change the element.
func (a Access) CanWrite() bool { return a != AccessReadOnly }

// ParseAccess returns the access with the given name.
func ParseAccess(name string) (Access, bool) {
	for a := AccessReadOnly; a <= AccessReadWrite; a++ {
		if a.String() == name {
			return a, true
		}
	}
	return 0, false
}

// GroupType separates settings from state.
type GroupType uint8

const (
	GroupSetting GroupType = iota
	GroupState
)

// String returns the group type name.
func (t GroupType) String() string {
	switch t {
	case GroupSetting:
		return "setting"
	case GroupState:
		return "state"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known group type.
func (t GroupType) IsValid() bool { return t <= GroupState }

// CollectionKind is the shape of a collection.
type CollectionKind uint8

const (
	FixedArray CollectionKind = iota
	VariableArray
	FixedDictionary
	VariableDictionary
)

// String returns the kind name.
func (k CollectionKind) String() string {
	switch k {
	case FixedArray:
		return "fixed_array"
	case VariableArray:
		return "variable_array"
	case FixedDictionary:
		return "fixed_dictionary"
	case VariableDictionary:
		return "variable_dictionary"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known kind.
func (k CollectionKind) IsValid() bool { return k <= VariableDictionary }

// IsVariable returns true when instances are discovered at runtime.
func (k CollectionKind) IsVariable() bool { return k == VariableArray || k == VariableDictionary }

// IsDictionary returns true when instances are addressed by key.
func (k CollectionKind) IsDictionary() bool { return k == FixedDictionary || k == VariableDictionary }

// ParseCollectionKind returns the kind with the given name.
func ParseCollectionKind(name string) (CollectionKind, bool) {
	for k := FixedArray; k <= VariableDictionary; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
