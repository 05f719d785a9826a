package output

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTicker fills every frame with a fixed value and counts calls.
type countingTicker struct {
	calls atomic.Int64
	left  float64
	right float64
}

func (t *countingTicker) Mix(samples [][2]float64) {
	t.calls.Add(1)
	for i := range samples {
		samples[i] = [2]float64{t.left, t.right}
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	tk := &countingTicker{}

	b, err := New(Options{Type: "null", BufferFrames: 16}, tk)
	require.NoError(t, err)
	assert.IsType(t, &NullBackend{}, b)

	b, err = New(Options{Type: "oto", BufferFrames: 16}, tk)
	require.NoError(t, err)
	assert.IsType(t, &otoBackend{}, b)

	_, err = New(Options{Type: "pulse"}, tk)
	assert.ErrorContains(t, err, `unknown audio backend "pulse"`)
}

func TestNew_DecodesSettings(t *testing.T) {
	tk := &countingTicker{}

	b, err := New(Options{
		Type:         "oto",
		BufferFrames: 16,
		Settings:     map[string]any{"buffer_size_ms": 50},
	}, tk)
	require.NoError(t, err)
	assert.Equal(t, 50, b.(*otoBackend).settings.BufferSizeMs)

	_, err = New(Options{
		Type:     "null",
		Settings: map[string]any{"tick_interval_ms": "soon"},
	}, tk)
	assert.ErrorContains(t, err, "failed to decode backend settings")
}

func TestNullBackend_CallerDrivenTicks(t *testing.T) {
	tk := &countingTicker{}
	b := NewNullBackend(Options{BufferFrames: 16}, 0, tk)

	require.NoError(t, b.Start())
	assert.EqualValues(t, 0, tk.calls.Load(), "no ticks until asked")

	b.Tick()
	b.Tick()
	assert.EqualValues(t, 2, tk.calls.Load())

	require.NoError(t, b.Close())
}

func TestNullBackend_PacedTicks(t *testing.T) {
	tk := &countingTicker{}
	b := NewNullBackend(Options{BufferFrames: 16}, 1, tk)

	require.NoError(t, b.Start())
	require.NoError(t, b.Start()) // second Start is a no-op

	assert.Eventually(t, func() bool {
		return tk.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	n := tk.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, n, tk.calls.Load(), "ticks must stop after close")
}

func TestOtoBackend_ReadPullsWholeTicks(t *testing.T) {
	tk := &countingTicker{left: 0.5, right: -0.25}
	b := newOtoBackend(Options{BufferFrames: 4, SampleRate: 44100}, otoSettings{}, tk)

	// Two frames' worth: half a tick, the rest carries over.
	p := make([]byte, 16)
	n, err := b.Read(p)
	require.NoError(t, err)
	require.Equal(t, len(p), n)
	assert.EqualValues(t, 1, tk.calls.Load())

	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(p[0:])))
	assert.Equal(t, float32(-0.25), math.Float32frombits(binary.LittleEndian.Uint32(p[4:])))

	// Draining the carried-over half does not run another tick.
	n, err = b.Read(p)
	require.NoError(t, err)
	require.Equal(t, len(p), n)
	assert.EqualValues(t, 1, tk.calls.Load())

	// The next byte starts a fresh tick.
	n, err = b.Read(p[:8])
	require.NoError(t, err)
	require.Equal(t, 8, n)
	assert.EqualValues(t, 2, tk.calls.Load())
}

func TestOtoBackend_MonoDownmix(t *testing.T) {
	tk := &countingTicker{left: 0.5, right: 0.25}
	b := newOtoBackend(Options{BufferFrames: 2, Mono: true}, otoSettings{}, tk)

	p := make([]byte, 8) // two mono frames
	n, err := b.Read(p)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	want := float32((0.5 + 0.25) / 2)
	assert.Equal(t, want, math.Float32frombits(binary.LittleEndian.Uint32(p[0:])))
	assert.Equal(t, want, math.Float32frombits(binary.LittleEndian.Uint32(p[4:])))
}

func TestOtoBackend_CloseBeforeStart(t *testing.T) {
	b := newOtoBackend(Options{BufferFrames: 4}, otoSettings{}, &countingTicker{})
	assert.NoError(t, b.Close())
}
