package rci

import (
	"errors"
	"fmt"

	"github.com/mash-protocol/rci-go/pkg/schema"
)

// ErrorID is a protocol error carried in a reply.
type ErrorID uint32

// Protocol error ids. Ids below ErrorProtocolFirst are fatal: they end the
// command. User error ids start at FirstUserError; group-specific ids follow
// the global user errors.
const (
	ErrorNone          ErrorID = 0
	ErrorBadCommand    ErrorID = 1
	ErrorBadDescriptor ErrorID = 2
	ErrorFatalBadValue ErrorID = 3

	ErrorProtocolFirst ErrorID = 4
	ErrorBadValue      ErrorID = 4
	ErrorInvalidIndex  ErrorID = 5
	ErrorInvalidName   ErrorID = 6
	ErrorMissingName   ErrorID = 7

	FirstUserError ErrorID = 8
)

var protocolErrorDescriptions = map[ErrorID]string{
	ErrorBadCommand:    "Bad command",
	ErrorBadDescriptor: "Bad descriptor",
	ErrorFatalBadValue: "Bad value",
	ErrorBadValue:      "Bad value",
	ErrorInvalidIndex:  "Invalid index",
	ErrorInvalidName:   "Invalid name",
	ErrorMissingName:   "Missing name",
}

// String returns the error name.
func (id ErrorID) String() string {
	switch id {
	case ErrorNone:
		return "NONE"
	case ErrorBadCommand:
		return "BAD_COMMAND"
	case ErrorBadDescriptor:
		return "BAD_DESCRIPTOR"
	case ErrorFatalBadValue:
		return "FATAL_BAD_VALUE"
	case ErrorBadValue:
		return "BAD_VALUE"
	case ErrorInvalidIndex:
		return "INVALID_INDEX"
	case ErrorInvalidName:
		return "INVALID_NAME"
	case ErrorMissingName:
		return "MISSING_NAME"
	default:
		if id >= FirstUserError {
			return fmt.Sprintf("USER_%d", uint32(id))
		}
		return "UNKNOWN"
	}
}

// IsFatal returns true for errors that end the command.
func (id ErrorID) IsFatal() bool {
	return id != ErrorNone && id < ErrorProtocolFirst
}

// Description returns the text sent with an error. User errors are looked up
// in the schema's global list and then in the group's own list; g may be nil.
func Description(id ErrorID, s *schema.Schema, g *schema.Group) string {
	if d, ok := protocolErrorDescriptions[id]; ok {
		return d
	}
	if id < FirstUserError {
		return ""
	}
	n := int(id - FirstUserError)
	if s != nil {
		if n < len(s.Errors) {
			return s.Errors[n]
		}
		n -= len(s.Errors)
	}
	if g != nil && n < len(g.Errors) {
		return g.Errors[n]
	}
	return ""
}

// Hints the engine itself attaches to protocol errors.
const (
	HintEmptyGroup     = "Empty group"
	HintEmptyElement   = "Empty element"
	HintMismatch       = "Mismatch configurations"
	HintContentSize    = "Maximum content size exceeded"
	HintTruncated      = "Truncated request"
	HintUnknownCommand = "Unknown command"
	HintDescriptor     = "Descriptor queries are served out of band"
	HintReadOnly       = "Read only element"
	HintWriteOnly      = "Write only element"
	HintEnumRange      = "Enum value out of range"
	HintValueType      = "Value type mismatch"
)

// Engine errors. Protocol errors never surface as Go errors.
var (
	ErrNoSession     = errors.New("rci: no active session")
	ErrSessionActive = errors.New("rci: session already active")
	ErrArenaFull     = errors.New("rci: no free session in arena")
	ErrBusy          = errors.New("rci: callback busy")
	ErrAborted       = errors.New("rci: exchange aborted")
	ErrInternal      = errors.New("rci: internal error")
)

// fault is a fatal protocol error that has already been written to the
// reply. Levels still open close themselves while it propagates.
type fault struct {
	id   ErrorID
	hint string
}

func (f *fault) Error() string {
	if f.hint == "" {
		return fmt.Sprintf("rci: %s", f.id)
	}
	return fmt.Sprintf("rci: %s: %s", f.id, f.hint)
}

// errHalted stops the exchange without any further callback or output. It
// is returned after an abort and after the session was lost.
var errHalted = errors.New("rci: halted")
