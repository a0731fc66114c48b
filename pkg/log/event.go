package log

import (
	"time"

	"github.com/mash-protocol/rci-go/pkg/wire"
)

// Event is one captured protocol event. CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`
	LocalRole Role      `cbor:"6,keyasint,omitempty"`

	RemoteAddr string `cbor:"7,keyasint,omitempty"`
	DeviceID   string `cbor:"8,keyasint,omitempty"`

	// SessionID identifies the RCI exchange within the connection.
	SessionID string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Envelope    *EnvelopeEvent    `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
	Callback    *CallbackEvent    `cbor:"15,keyasint,omitempty"`
}

// Direction indicates message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the stack captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerEnvelope is the session envelope layer (decoded CBOR).
	LayerEnvelope Layer = 1
	// LayerEngine is the RCI engine.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerEnvelope:
		return "ENVELOPE"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage  Category = 0
	CategoryControl  Category = 1
	CategoryState    Category = 2
	CategoryError    Category = 3
	CategoryCallback Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryCallback:
		return "CALLBACK"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint is a device or controller.
type Role uint8

const (
	RoleDevice     Role = 0
	RoleController Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleController:
		return "CONTROLLER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes, length prefix included.
	Size int `cbor:"1,keyasint"`

	// Data holds the frame bytes, possibly truncated.
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// EnvelopeEvent captures a decoded session envelope.
type EnvelopeEvent struct {
	Type  wire.MessageType `cbor:"1,keyasint"`
	Seq   uint32           `cbor:"2,keyasint"`
	Final bool             `cbor:"3,keyasint,omitempty"`

	// PayloadSize is the size of the RCI bytes carried.
	PayloadSize int `cbor:"4,keyasint"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntitySession    StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures ping/pong/close envelopes.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
	Seq  uint32         `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// CallbackEvent records one dispatch into the configuration callback.
type CallbackEvent struct {
	// Request is the callback request name, e.g. "GROUP_START".
	Request string `cbor:"1,keyasint"`

	// Result is CONTINUE, BUSY, ABORT or SUPPRESSED.
	Result string `cbor:"2,keyasint"`

	GroupID   int    `cbor:"3,keyasint"`
	Instance  int    `cbor:"4,keyasint,omitempty"`
	Key       string `cbor:"5,keyasint,omitempty"`
	Depth     int    `cbor:"6,keyasint,omitempty"`
	ElementID int    `cbor:"7,keyasint,omitempty"`

	// ErrorID is the protocol error the callback reported, if any.
	ErrorID uint32 `cbor:"8,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the protocol error id, when there is one.
	Code    *int   `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"`
}
