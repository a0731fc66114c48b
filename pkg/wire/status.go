package wire

// Status is the outcome reported on the final reply of a session.
type Status uint8

const (
	// StatusComplete indicates the exchange finished; errors, if any, are in
	// the RCI reply itself.
	StatusComplete Status = 0

	// StatusAborted indicates the device backend aborted the exchange. The
	// reply may be incomplete.
	StatusAborted Status = 1

	// StatusBusy indicates the device has no free session; try again later.
	StatusBusy Status = 2

	// StatusCancelled confirms a lost session.
	StatusCancelled Status = 3

	// StatusProtocolError indicates an envelope out of sequence.
	StatusProtocolError Status = 4

	// StatusInternalError indicates a device fault.
	StatusInternalError Status = 5
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "COMPLETE"
	case StatusAborted:
		return "ABORTED"
	case StatusBusy:
		return "BUSY"
	case StatusCancelled:
		return "CANCELLED"
	case StatusProtocolError:
		return "PROTOCOL_ERROR"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusComplete
}
