// ABOUTME: Event types produced by a running turn and relayed across the bridge
// ABOUTME: Content and tool_use events precede exactly one terminal done or error event

package bridge

// Kind indicates the type of a turn event.
type Kind int

const (
	// KindContent is an ordered assistant text fragment.
	KindContent Kind = iota

	// KindToolUse announces a tool invocation (informational; the tool has
	// already been dispatched by the runtime).
	KindToolUse

	// KindDone terminates a successful turn.
	KindDone

	// KindError terminates a failed turn, carrying the failure message.
	KindError
)

// String returns the wire name of the kind, matching the JSON event types
// exposed at the HTTP boundary.
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindToolUse:
		return "tool_use"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one observable step of a turn.
type Event struct {
	Kind Kind

	// Text is the content fragment for KindContent.
	Text string

	// ToolName and InputJSON describe the invocation for KindToolUse.
	ToolName  string
	InputJSON string

	// Err carries the message for KindError.
	Err string
}

// Terminal reports whether the event ends its turn.
func (e *Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}
