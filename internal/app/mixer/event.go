package mixer

// EventType represents a playback event type.
type EventType int

const (
	EventEnded   EventType = iota // sound reached end of stream or finished its fade
	EventStopped                  // sound was stopped or replaced by a new play
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEnded:
		return "ended"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EventNone is the end-event code that disables notification for a channel.
const EventNone = 0

// Event is delivered to the application when a sound that was audible on a
// channel is destroyed. Events are only emitted for channels with an
// end-event code installed.
type Event struct {
	Type    EventType
	Channel int
	Code    int // caller-supplied end-event identifier
	Name    any // opaque name token of the sound that ended
}
