package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel_StateDerivation(t *testing.T) {
	p := func() *playback { return &playback{} }
	fading := func() *playback { return &playback{fade: newEnvelope(10, 1.0)} }

	tests := []struct {
		name string
		ch   *channel
		want State
	}{
		{"empty channel", &channel{}, StateIdle},
		{"paused but silent", &channel{paused: true}, StateIdle},
		{"active sound", &channel{active: p()}, StatePlaying},
		{"active and paused", &channel{active: p(), paused: true}, StatePaused},
		{"active with envelope", &channel{active: fading()}, StateFadingOut},
		{"fading slot occupied", &channel{fading: fading()}, StateFadingOut},
		{"fading slot and paused", &channel{fading: fading(), paused: true}, StatePaused},
		{"replacement behind a fade", &channel{active: p(), fading: fading()}, StateFadingOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ch.state())
		})
	}
}

func TestChannel_QueueDepth(t *testing.T) {
	c := newChannel(0)
	assert.Equal(t, 0, c.queueDepth())

	c.queued = &playback{}
	assert.Equal(t, 1, c.queueDepth())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "fading_out", StateFadingOut.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestEnvelope_GainRampsToSilence(t *testing.T) {
	v := newEnvelope(4, 1.0)

	assert.InDelta(t, 1.0, v.gainAt(0), 1e-9)
	assert.InDelta(t, 0.75, v.gainAt(1), 1e-9)
	assert.InDelta(t, 0.25, v.gainAt(3), 1e-9)
	assert.Equal(t, 0.0, v.gainAt(4))
	assert.Equal(t, 0.0, v.gainAt(100))
}

func TestEnvelope_RestartKeepsGainContinuous(t *testing.T) {
	v := newEnvelope(10, 1.0)
	v.remaining = 5 // halfway through the ramp

	restarted := newEnvelope(10, v.gain())
	assert.InDelta(t, 0.5, restarted.gainAt(0), 1e-9)
	assert.InDelta(t, 0.05, restarted.gainAt(9), 1e-9)
}

func TestEnvelope_MinimumOneFrame(t *testing.T) {
	v := newEnvelope(0, 1.0)
	assert.Equal(t, int64(1), v.total)
	assert.Equal(t, int64(1), v.remaining)
}
