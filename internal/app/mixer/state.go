// Package mixer provides the per-channel playback state machine and the
// mix-tick engine that advances it.
package mixer

// State represents the observable state of one channel.
type State int

const (
	StateIdle      State = iota // no active sound
	StatePlaying                // a sound is being mixed
	StatePaused                 // channel is frozen, no frames consumed
	StateFadingOut              // active sound is ramping to silence
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFadingOut:
		return "fading_out"
	default:
		return "unknown"
	}
}
