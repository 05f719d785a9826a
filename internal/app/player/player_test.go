package player

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mochuelitoval/renpy/internal/app/mixer"
	"github.com/mochuelitoval/renpy/internal/domain/sound"
	"github.com/mochuelitoval/renpy/internal/infra/config"
	"github.com/mochuelitoval/renpy/internal/infra/decode"
	"github.com/mochuelitoval/renpy/internal/infra/output"
)

func testConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			Freq:     44100,
			Samples:  2048,
			Channels: 4,
		},
		Backend: config.BackendConfig{Type: "null"},
	}
}

// newTestPlayer builds a started player on a caller-driven null backend.
func newTestPlayer(t *testing.T) (*Player, *output.NullBackend) {
	t.Helper()

	p, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	require.NoError(t, p.Start())

	nb, ok := p.backend.(*output.NullBackend)
	require.True(t, ok)
	return p, nb
}

// wavFile writes a short 16-bit mono PCM file and returns its path.
func wavFile(t *testing.T, frames int) string {
	t.Helper()

	var data bytes.Buffer
	for i := 0; i < frames; i++ {
		_ = binary.Write(&data, binary.LittleEndian, int16(8000))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(44100))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(44100*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Backend.Type = "pulse"

	_, err := New(cfg)
	assert.ErrorContains(t, err, "failed to create audio backend")
}

func TestPlayer_StartIsIdempotent(t *testing.T) {
	p, _ := newTestPlayer(t)
	assert.NoError(t, p.Start())
}

func TestPlayer_CloseIsIdempotent(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Close()
	p.Close()

	assert.Error(t, p.Start(), "a closed player must not restart")
}

func TestPlayer_PlayFileDeliversEndEvent(t *testing.T) {
	p, nb := newTestPlayer(t)

	id, events := p.Subscribe(4)
	defer p.Unsubscribe(id)

	m := p.Mixer()
	require.NoError(t, m.SetEndEvent(0, 11))
	require.NoError(t, p.PlayFile(0, wavFile(t, 1000), sound.Request{}))

	name, err := m.PlayingName(0)
	require.NoError(t, err)
	assert.Contains(t, name, "tone.wav")

	// 1000 frames fit inside a single 2048-frame tick.
	nb.Tick()

	select {
	case ev := <-events:
		assert.Equal(t, mixer.EventEnded, ev.Type)
		assert.Equal(t, 0, ev.Channel)
		assert.Equal(t, 11, ev.Code)
	case <-time.After(time.Second):
		t.Fatal("no end event delivered")
	}

	st, err := m.State(0)
	require.NoError(t, err)
	assert.Equal(t, mixer.StateIdle, st)
}

func TestPlayer_QueueFileChainsTight(t *testing.T) {
	p, nb := newTestPlayer(t)
	m := p.Mixer()

	require.NoError(t, p.PlayFile(0, wavFile(t, 3000), sound.Request{Name: "first"}))
	require.NoError(t, p.QueueFile(0, wavFile(t, 3000), sound.Request{Name: "second", Tight: true}))

	depth, err := m.QueueDepth(0)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	// 3000 frames end during the second tick; the queued sound takes over.
	nb.Tick()
	nb.Tick()

	name, err := m.PlayingName(0)
	require.NoError(t, err)
	assert.Equal(t, "second", name)
}

func TestPlayer_PlayFileMissing(t *testing.T) {
	p, _ := newTestPlayer(t)

	err := p.PlayFile(0, filepath.Join(t.TempDir(), "missing.ogg"), sound.Request{})
	require.Error(t, err)
	assert.NotEmpty(t, p.LastError())
}

func TestPlayer_PlayFileUnsupportedFormat(t *testing.T) {
	p, _ := newTestPlayer(t)

	path := filepath.Join(t.TempDir(), "track.xm")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	err := p.PlayFile(0, path, sound.Request{})
	assert.ErrorIs(t, err, decode.ErrUnsupportedFormat)
	assert.NotEmpty(t, p.LastError())
}

func TestPlayer_StartClearsLastError(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	defer p.Close()

	p.Mixer().RecordError("stale failure")
	require.NoError(t, p.Start())
	assert.Empty(t, p.LastError())
}
