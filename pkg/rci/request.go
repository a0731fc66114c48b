package rci

// Request identifies what the engine asks the callback to do.
type Request uint8

const (
	RequestSessionStart Request = iota
	RequestSessionEnd
	RequestSessionCancel
	RequestActionStart
	RequestActionEnd
	RequestGroupStart
	RequestGroupEnd
	RequestGroupInstancesLock
	RequestGroupInstancesSet
	RequestGroupInstancesUnlock
	RequestGroupInstanceRemove
	RequestListStart
	RequestListEnd
	RequestListInstancesLock
	RequestListInstancesSet
	RequestListInstancesUnlock
	RequestListInstanceRemove
	RequestElementProcess
	RequestDoCommand
	RequestReboot
	RequestSetFactoryDefault
)

var requestNames = [...]string{
	RequestSessionStart:         "SESSION_START",
	RequestSessionEnd:           "SESSION_END",
	RequestSessionCancel:        "SESSION_CANCEL",
	RequestActionStart:          "ACTION_START",
	RequestActionEnd:            "ACTION_END",
	RequestGroupStart:           "GROUP_START",
	RequestGroupEnd:             "GROUP_END",
	RequestGroupInstancesLock:   "GROUP_INSTANCES_LOCK",
	RequestGroupInstancesSet:    "GROUP_INSTANCES_SET",
	RequestGroupInstancesUnlock: "GROUP_INSTANCES_UNLOCK",
	RequestGroupInstanceRemove:  "GROUP_INSTANCE_REMOVE",
	RequestListStart:            "LIST_START",
	RequestListEnd:              "LIST_END",
	RequestListInstancesLock:    "LIST_INSTANCES_LOCK",
	RequestListInstancesSet:     "LIST_INSTANCES_SET",
	RequestListInstancesUnlock:  "LIST_INSTANCES_UNLOCK",
	RequestListInstanceRemove:   "LIST_INSTANCE_REMOVE",
	RequestElementProcess:       "ELEMENT_PROCESS",
	RequestDoCommand:            "DO_COMMAND",
	RequestReboot:               "REBOOT",
	RequestSetFactoryDefault:    "SET_FACTORY_DEFAULT",
}

// String returns the request name.
func (r Request) String() string {
	if int(r) < len(requestNames) {
		return requestNames[r]
	}
	return "UNKNOWN"
}

// IsValid returns true for a known request.
func (r Request) IsValid() bool { return int(r) < len(requestNames) }

// Result is the outcome of one callback invocation.
type Result uint8

const (
	// Continue reports that the request was handled; errors go in
	// Context.Response.ErrorID.
	Continue Result = iota

	// Busy asks the engine to repeat the same request later with the same
	// context.
	Busy

	// Abort ends the exchange at once.
	Abort
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Continue:
		return "CONTINUE"
	case Busy:
		return "BUSY"
	case Abort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// Action is the kind of command being executed.
type Action uint8

const (
	ActionQuery Action = iota
	ActionSet
	ActionDoCommand
	ActionReboot
	ActionSetFactoryDefault
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionQuery:
		return "QUERY"
	case ActionSet:
		return "SET"
	case ActionDoCommand:
		return "DO_COMMAND"
	case ActionReboot:
		return "REBOOT"
	case ActionSetFactoryDefault:
		return "SET_FACTORY_DEFAULT"
	default:
		return "UNKNOWN"
	}
}

// CommandID is the command code carried in the first token of a request.
type CommandID uint8

const (
	CommandQuerySetting      CommandID = 1
	CommandSetSetting        CommandID = 2
	CommandQueryState        CommandID = 3
	CommandSetState          CommandID = 4
	CommandQueryDescriptor   CommandID = 5
	CommandDoCommand         CommandID = 6
	CommandReboot            CommandID = 7
	CommandSetFactoryDefault CommandID = 8
)

// String returns the command name.
func (c CommandID) String() string {
	switch c {
	case CommandQuerySetting:
		return "query_setting"
	case CommandSetSetting:
		return "set_setting"
	case CommandQueryState:
		return "query_state"
	case CommandSetState:
		return "set_state"
	case CommandQueryDescriptor:
		return "query_descriptor"
	case CommandDoCommand:
		return "do_command"
	case CommandReboot:
		return "reboot"
	case CommandSetFactoryDefault:
		return "set_factory_default"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known command.
func (c CommandID) IsValid() bool {
	return c >= CommandQuerySetting && c <= CommandSetFactoryDefault
}

// maxAttributes is the number of command attributes each command accepts.
func (c CommandID) maxAttributes() int {
	switch c {
	case CommandQuerySetting:
		return 2
	case CommandSetSetting, CommandDoCommand:
		return 1
	default:
		return 0
	}
}

// Source selects which copy of the settings a query reads.
type Source uint8

const (
	SourceCurrent Source = iota
	SourceStored
	SourceDefaults
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceCurrent:
		return "current"
	case SourceStored:
		return "stored"
	case SourceDefaults:
		return "defaults"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known source.
func (s Source) IsValid() bool { return s <= SourceDefaults }

// CompareTo selects the copy a query compares against. Matching values are
// left out of the reply.
type CompareTo uint8

const (
	CompareNone CompareTo = iota
	CompareCurrent
	CompareStored
	CompareDefaults
)

// String returns the comparison name.
func (c CompareTo) String() string {
	switch c {
	case CompareNone:
		return "none"
	case CompareCurrent:
		return "current"
	case CompareStored:
		return "stored"
	case CompareDefaults:
		return "defaults"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known comparison.
func (c CompareTo) IsValid() bool { return c <= CompareDefaults }

// Command attribute ids.
const (
	attrSource    = 0
	attrCompareTo = 1
	attrEmbed     = 0
	attrTarget    = 0

	maxTargetLength = 20
)

// Collection attribute ids.
const (
	attrIndex    = 0
	attrCount    = 1
	attrShrink   = 2
	attrName     = 0
	attrComplete = 1
	attrRemove   = 2

	maxKeyLength = 64
)

// Attributes are the command attributes of the current request.
type Attributes struct {
	Source    Source
	CompareTo CompareTo

	// EmbedTransformed asks set callbacks to report the value they applied.
	EmbedTransformed bool

	// Target names the do_command handler.
	Target string
}
