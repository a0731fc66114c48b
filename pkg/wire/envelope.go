package wire

import (
	"errors"
	"fmt"
)

// CBOR map keys of an Envelope.
const (
	KeyType    = 1
	KeySession = 2
	KeySeq     = 3
	KeyFinal   = 4
	KeyPayload = 5
	KeyStatus  = 6
)

// MaxPayloadSize bounds the payload of one envelope so that an encoded
// envelope always fits in a transport frame.
const MaxPayloadSize = 60 * 1024

// MessageType identifies an envelope.
type MessageType uint8

const (
	MessageStart MessageType = 1
	MessageData  MessageType = 2
	MessageLost  MessageType = 3
	MessageReply MessageType = 4
	MessagePing  MessageType = 5
	MessagePong  MessageType = 6
	MessageClose MessageType = 7
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageStart:
		return "START"
	case MessageData:
		return "DATA"
	case MessageLost:
		return "LOST"
	case MessageReply:
		return "REPLY"
	case MessagePing:
		return "PING"
	case MessagePong:
		return "PONG"
	case MessageClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known message type.
func (t MessageType) IsValid() bool {
	return t >= MessageStart && t <= MessageClose
}

// IsControl returns true for ping, pong and close.
func (t MessageType) IsControl() bool {
	return t >= MessagePing && t <= MessageClose
}

// Envelope is one framed message.
//
// CBOR encoding:
//
//	{
//	  1: type,      // uint8
//	  2: session,   // uint32, session messages only
//	  3: seq,       // uint32: chunk number, or ping sequence
//	  4: final,     // bool: last chunk of the request or reply
//	  5: payload,   // bytes: request or reply chunk
//	  6: status     // uint8: reply status, on the final reply
//	}
type Envelope struct {
	Type    MessageType `cbor:"1,keyasint"`
	Session uint32      `cbor:"2,keyasint,omitempty"`
	Seq     uint32      `cbor:"3,keyasint,omitempty"`
	Final   bool        `cbor:"4,keyasint,omitempty"`
	Payload []byte      `cbor:"5,keyasint,omitempty"`
	Status  Status      `cbor:"6,keyasint,omitempty"`
}

// Envelope validation errors.
var (
	ErrInvalidType    = errors.New("invalid message type")
	ErrMissingSession = errors.New("session message without session id")
	ErrControlPayload = errors.New("control message with payload")
	ErrPayloadSize    = errors.New("payload too large")
)

// Validate checks the envelope invariants.
func (e *Envelope) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, e.Type)
	}
	if len(e.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(e.Payload))
	}
	if e.Type.IsControl() {
		if len(e.Payload) != 0 || e.Session != 0 {
			return ErrControlPayload
		}
		return nil
	}
	if e.Session == 0 {
		return ErrMissingSession
	}
	return nil
}

// NewStart returns the first request envelope of a session.
func NewStart(session uint32, chunk []byte, final bool) *Envelope {
	return &Envelope{Type: MessageStart, Session: session, Final: final, Payload: chunk}
}

// NewData returns a further request envelope of a session.
func NewData(session, seq uint32, chunk []byte, final bool) *Envelope {
	return &Envelope{Type: MessageData, Session: session, Seq: seq, Final: final, Payload: chunk}
}

// NewReply returns a reply envelope. Status is meaningful on the final one.
func NewReply(session, seq uint32, chunk []byte, final bool, status Status) *Envelope {
	return &Envelope{Type: MessageReply, Session: session, Seq: seq, Final: final, Payload: chunk, Status: status}
}

// NewControl returns a ping, pong or close envelope.
func NewControl(t MessageType, seq uint32) *Envelope {
	return &Envelope{Type: t, Seq: seq}
}
