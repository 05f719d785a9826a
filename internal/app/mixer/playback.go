package mixer

import (
	"time"

	"github.com/google/uuid"

	"github.com/mochuelitoval/renpy/internal/domain/sound"
)

// playback is the runtime record of one sound bound to a decode stream,
// distinct from the request that created it.
type playback struct {
	id      uuid.UUID
	src     sound.Source
	name    any
	tight   bool
	fadeout time.Duration // fade for the sound this one supersedes at promotion

	frames int64 // frames mixed so far, drives position queries
	fade   *envelope

	// reading is set while the mix tick has the engine lock dropped inside
	// this playback's Stream call; a release seen then is deferred.
	reading bool
}

func newPlayback(req sound.Request) *playback {
	return &playback{
		id:      uuid.New(),
		src:     req.Source,
		name:    req.Name,
		tight:   req.Tight,
		fadeout: req.Fadeout,
	}
}

// envelope is a linear gain ramp to silence, counted in frames. start is the
// gain at the beginning of the ramp; re-fading an already fading sound keeps
// the ramp continuous by starting the new envelope at the current gain.
type envelope struct {
	start     float64
	total     int64
	remaining int64
}

func newEnvelope(frames int64, start float64) *envelope {
	if frames < 1 {
		frames = 1
	}
	return &envelope{start: start, total: frames, remaining: frames}
}

// gainAt returns the gain applied to the offset-th frame of the current
// block. Non-increasing as offset grows and as remaining shrinks.
func (v *envelope) gainAt(offset int64) float64 {
	left := v.remaining - offset
	if left <= 0 {
		return 0
	}
	return v.start * float64(left) / float64(v.total)
}

// gain returns the envelope's current gain, used when a new fade restarts
// an in-progress one.
func (v *envelope) gain() float64 {
	return v.gainAt(0)
}
