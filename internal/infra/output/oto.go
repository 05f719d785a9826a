package output

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
)

type otoSettings struct {
	// BufferSizeMs overrides the device buffer; 0 lets oto choose.
	BufferSizeMs int `mapstructure:"buffer_size_ms"`
}

// otoBackend plays the mix output through an oto v3 context. It is handed
// to oto as an io.Reader: the device pulls interleaved little-endian
// float32 PCM, one mix tick at a time.
type otoBackend struct {
	opts     Options
	settings otoSettings
	ticker   Ticker

	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	started bool

	buf       [][2]float64 // one tick of mixed frames
	pending   []byte       // encoded bytes not yet consumed by the device
	encodeBuf []byte
}

func newOtoBackend(opts Options, s otoSettings, t Ticker) *otoBackend {
	return &otoBackend{
		opts:     opts,
		settings: s,
		ticker:   t,
		buf:      make([][2]float64, opts.BufferFrames),
	}
}

func (b *otoBackend) channelCount() int {
	if b.opts.Mono {
		return 1
	}
	return 2
}

func (b *otoBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   b.opts.SampleRate,
		ChannelCount: b.channelCount(),
		Format:       oto.FormatFloat32LE,
	}
	if b.settings.BufferSizeMs > 0 {
		op.BufferSize = time.Duration(b.settings.BufferSizeMs) * time.Millisecond
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return errors.Wrap(err, "failed to open oto context")
	}
	<-ready

	b.ctx = ctx
	b.player = ctx.NewPlayer(b)
	b.player.Play()
	b.started = true
	return nil
}

// Read serves the device pull path. Each refill runs exactly one mix tick
// and encodes it; leftover bytes carry over between calls.
func (b *otoBackend) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(b.pending) == 0 {
			b.ticker.Mix(b.buf)
			b.pending = b.encode(b.buf)
		}
		c := copy(p[n:], b.pending)
		b.pending = b.pending[c:]
		n += c
	}
	return n, nil
}

// encode converts mixed stereo frames to the device format, downmixing
// when the output is mono. The returned slice reuses an internal buffer.
func (b *otoBackend) encode(frames [][2]float64) []byte {
	frameBytes := 4 * b.channelCount()
	need := len(frames) * frameBytes
	if cap(b.encodeBuf) < need {
		b.encodeBuf = make([]byte, need)
	}
	out := b.encodeBuf[:need]

	o := 0
	for _, f := range frames {
		if b.opts.Mono {
			binary.LittleEndian.PutUint32(out[o:], math.Float32bits(float32((f[0]+f[1])/2)))
			o += 4
			continue
		}
		binary.LittleEndian.PutUint32(out[o:], math.Float32bits(float32(f[0])))
		binary.LittleEndian.PutUint32(out[o+4:], math.Float32bits(float32(f[1])))
		o += 8
	}
	return out
}

func (b *otoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	b.started = false
	if b.player != nil {
		_ = b.player.Close()
		b.player = nil
	}
	// oto contexts cannot be torn down; suspending stops the pull loop.
	if b.ctx != nil {
		_ = b.ctx.Suspend()
	}
	return nil
}
