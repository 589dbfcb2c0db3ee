package workflow

// Event is one observable fact about a run: an action outcome or a
// completed transition. The interpreter emits events; where they go
// (console, database, both) is the sink's concern.
type Event struct {
	// Node identifies the interpreter's target (e.g. node-web-01, cli).
	Node string

	// Label carries a short rendering of the originating transition.
	Label string

	// ActionName is the dotted actor.method form, empty for transition
	// events.
	ActionName string

	Message string
	Error   bool

	ExitCode   *int
	DurationMS *int64
}

// EventSink receives interpreter events. Implementations must be safe
// for concurrent use; one sink is typically shared by every node's
// interpreter.
type EventSink interface {
	Emit(Event)
}

// discardSink drops every event. Used when no sink is configured.
type discardSink struct{}

func (discardSink) Emit(Event) {}
