package pipeline

// EventType tags an incremental pipeline event.
type EventType string

const (
	EventStatus   EventType = "status"   // stage transitions
	EventThinking EventType = "thinking" // intermediate reasoning signals
	EventContent  EventType = "content"  // answer content
)

// Event is one incremental update pushed while a question is processed.
type Event struct {
	Type EventType
	Text string
}

// EventSink consumes incremental events. Implementations must be fast
// or buffer internally; the pipeline emits synchronously between
// stages.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// emit pushes to the sink when one is attached.
func emit(sink EventSink, t EventType, text string) {
	if sink != nil {
		sink.Emit(Event{Type: t, Text: text})
	}
}
