package mixer

import (
	"errors"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mochuelitoval/renpy/internal/domain/sound"
)

// Errors
var (
	ErrInvalidChannel = errors.New("channel index out of range")
	ErrNoSound        = errors.New("no sound playing")
	ErrClosed         = errors.New("mixer is closed")
)

// Config holds engine configuration.
type Config struct {
	SampleRate   int  // output sample rate in Hz
	Channels     int  // number of logical channels
	BufferFrames int  // frames per mix tick
	FadeOverlap  bool // mix a superseded, fading sound alongside its replacement
}

// Engine owns the channel table and advances it once per mix tick. All
// dispatcher operations are safe to call from any goroutine while the audio
// callback concurrently drives Mix; state is guarded by a single short-held
// lock which is released around every stream read.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	closed bool

	channels []*channel
	scratch  [][2]float64

	// graveyard holds playbacks released while a mix-tick read was still
	// inside their source; the close runs once the read returns.
	graveyard []*playback

	eventCh chan Event

	errMu   sync.Mutex
	lastErr string
}

// New creates an engine with cfg.Channels idle channels.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		channels: make([]*channel, cfg.Channels),
		scratch:  make([][2]float64, cfg.BufferFrames),
		eventCh:  make(chan Event, 64),
	}
	for i := range e.channels {
		e.channels[i] = newChannel(i)
	}
	return e
}

// Events returns the end-event channel. It is drained by the application
// (or a pump on its behalf); the mix tick never blocks on it.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// ChannelCount returns the configured number of channels.
func (e *Engine) ChannelCount() int {
	return len(e.channels)
}

// SampleRate returns the configured output rate in Hz.
func (e *Engine) SampleRate() int {
	return e.cfg.SampleRate
}

// Play replaces the channel's active sound with a new one built from req.
// A non-tight queued sound is dropped; a tight one survives and chains onto
// the new sound. With req.Fadeout > 0 the previous active sound ramps to
// silence instead of being cut.
func (e *Engine) Play(ch int, req sound.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}

	e.supersedeLocked(c, req.Fadeout)

	if c.queued != nil && !c.queued.tight {
		e.releaseLocked(c.queued)
		c.queued = nil
	}

	p := newPlayback(req)
	c.active = p
	c.paused = req.StartPaused

	zlog.Debug().Msgf("mixer: channel %d play %s tight=%v fadeout=%v paused=%v",
		ch, p.id, p.tight, req.Fadeout, c.paused)
	return nil
}

// Queue sets the channel's pending sound, replacing any prior queued entry.
// The replaced entry is released without ever playing and fires no event.
func (e *Engine) Queue(ch int, req sound.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}

	if c.queued != nil {
		e.releaseLocked(c.queued)
	}
	c.queued = newPlayback(req)

	zlog.Debug().Msgf("mixer: channel %d queue %s tight=%v", ch, c.queued.id, c.queued.tight)
	return nil
}

// Stop immediately silences the channel: the active and fading sounds fire
// their end event and everything, queued included, is released. No fade.
func (e *Engine) Stop(ch int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}

	if c.active != nil {
		e.finishLocked(c, c.active, EventStopped)
		c.active = nil
	}
	if c.fading != nil {
		e.finishLocked(c, c.fading, EventStopped)
		c.fading = nil
	}
	if c.queued != nil {
		e.releaseLocked(c.queued)
		c.queued = nil
	}
	c.hold = false

	zlog.Debug().Msgf("mixer: channel %d stopped", ch)
	return nil
}

// Dequeue clears the channel's queued sound without touching the active
// one. A tight entry is left in place unless evenTight is set.
func (e *Engine) Dequeue(ch int, evenTight bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}

	if c.queued != nil && (evenTight || !c.queued.tight) {
		e.releaseLocked(c.queued)
		c.queued = nil
	}
	return nil
}

// QueueDepth returns the number of sounds waiting behind the active one
// (0 or 1).
func (e *Engine) QueueDepth(ch int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return 0, err
	}
	return c.queueDepth(), nil
}

// PlayingName returns the opaque name token of the channel's active sound,
// or nil if the channel is silent.
func (e *Engine) PlayingName(ch int) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return nil, err
	}
	if c.active == nil {
		return nil, nil
	}
	return c.active.name, nil
}

// Fadeout ramps the channel's active sound to silence over d. At envelope
// completion the sound fires its end event and a tight queued sound is
// promoted. d <= 0 degenerates to ending the active sound at once.
func (e *Engine) Fadeout(ch int, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}
	if c.active == nil {
		return nil
	}

	if d <= 0 {
		e.finishLocked(c, c.active, EventEnded)
		c.active = nil
		if c.queued != nil && c.queued.tight {
			e.promoteLocked(c)
		}
		return nil
	}

	start := 1.0
	if c.active.fade != nil {
		start = c.active.fade.gain()
	}
	c.active.fade = newEnvelope(e.framesIn(d), start)

	zlog.Debug().Msgf("mixer: channel %d fadeout %v", ch, d)
	return nil
}

// Pause freezes or resumes the channel. A paused channel consumes no
// frames; position and fade envelopes resume where they left off.
func (e *Engine) Pause(ch int, flag bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}
	c.paused = flag
	return nil
}

// UnpauseAll resumes every channel.
func (e *Engine) UnpauseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.channels {
		c.paused = false
	}
}

// SetEndEvent installs the code delivered when a sound on the channel ends
// or is stopped. EventNone disables notification.
func (e *Engine) SetEndEvent(ch int, code int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}
	c.endEvent = code
	return nil
}

// Pos returns the elapsed playback position of the channel's active sound.
// Returns ErrNoSound if the channel is silent. Position does not advance
// while paused or while the sound is held behind a sequenced fade.
func (e *Engine) Pos(ch int) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return 0, err
	}
	if c.active == nil {
		return 0, ErrNoSound
	}
	return time.Duration(c.active.frames) * time.Second / time.Duration(e.cfg.SampleRate), nil
}

// SetVolume sets the channel gain. Out-of-range input is clamped to
// [0.0, 1.0], never rejected.
func (e *Engine) SetVolume(ch int, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return err
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.volume = v
	return nil
}

// Volume returns the channel gain.
func (e *Engine) Volume(ch int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return 0, err
	}
	return c.volume, nil
}

// State returns the channel's derived state.
func (e *Engine) State(ch int) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.channelLocked(ch)
	if err != nil {
		return StateIdle, err
	}
	return c.state(), nil
}

// LastError returns the most recent recorded failure text, process-wide
// single slot, overwritten on each new failure. Empty when none.
func (e *Engine) LastError() string {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErr
}

// RecordError overwrites the last-error slot.
func (e *Engine) RecordError(msg string) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.lastErr = msg
}

// Close releases every channel's resources and closes the event channel.
// Idempotent; no events fire for sounds released here.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, c := range e.channels {
		for _, p := range []*playback{c.active, c.fading, c.queued} {
			if p != nil {
				e.releaseLocked(p)
			}
		}
		c.active, c.fading, c.queued = nil, nil, nil
		c.hold = false
	}
	e.mu.Unlock()
	close(e.eventCh)
}

// Mix produces one tick of audio into out, summing every channel and
// advancing its state. This is the real-time entry point: it never blocks
// on the application and releases the engine lock around stream reads.
func (e *Engine) Mix(out [][2]float64) {
	for i := range out {
		out[i] = [2]float64{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, c := range e.channels {
		e.mixChannelLocked(c, out)
	}
}

func (e *Engine) mixChannelLocked(c *channel, out [][2]float64) {
	if c.paused {
		return
	}

	// A tight queued sound chains onto an idle channel at the next tick.
	// Non-tight queued entries are never auto-promoted.
	if c.active == nil && c.fading == nil && c.queued != nil && c.queued.tight {
		e.promoteLocked(c)
	}

	seq := c.hold
	off := 0
	if c.fading != nil {
		off = e.mixFadingLocked(c, out)
	}

	if c.active == nil || c.paused {
		return
	}
	if seq && c.fading != nil {
		// Sequenced fade policy: the new sound waits for the old fade.
		return
	}
	if !seq {
		off = 0
	}
	e.mixActiveLocked(c, out[off:])
}

// mixFadingLocked advances the channel's fading slot. It returns the index
// of the first frame of out not covered by the fade: len(out) while the
// fade is still audible, or the completion offset within this tick.
func (e *Engine) mixFadingLocked(c *channel, out [][2]float64) int {
	p := c.fading

	want := len(out)
	if int64(want) > p.fade.remaining {
		want = int(p.fade.remaining)
	}

	got, ok := e.readUnlocked(p, e.scratch[:want])
	if e.closed || c.fading != p || c.paused {
		// The channel was mutated during the read; drop the frames.
		return 0
	}

	for i := 0; i < got; i++ {
		g := c.volume * p.fade.gainAt(int64(i))
		out[i][0] += e.scratch[i][0] * g
		out[i][1] += e.scratch[i][1] * g
	}
	p.frames += int64(got)
	p.fade.remaining -= int64(got)

	if ok && p.fade.remaining > 0 {
		return len(out)
	}

	e.finishLocked(c, p, EventEnded)
	c.fading = nil
	c.hold = false
	return got
}

// mixActiveLocked fills out from the channel's active sound, applying
// volume and any fade envelope, promoting tight queued sounds in the same
// tick so no silent frame separates them.
func (e *Engine) mixActiveLocked(c *channel, out [][2]float64) {
	off := 0
	for off < len(out) {
		p := c.active
		if p == nil {
			return
		}

		want := len(out) - off
		if p.fade != nil && int64(want) > p.fade.remaining {
			want = int(p.fade.remaining)
		}

		got, ok := e.readUnlocked(p, e.scratch[:want])
		if e.closed || c.active != p || c.paused {
			// The channel was mutated during the read; drop the frames.
			return
		}

		for i := 0; i < got; i++ {
			g := c.volume
			if p.fade != nil {
				g *= p.fade.gainAt(int64(i))
			}
			out[off+i][0] += e.scratch[i][0] * g
			out[off+i][1] += e.scratch[i][1] * g
		}
		p.frames += int64(got)
		if p.fade != nil {
			p.fade.remaining -= int64(got)
		}
		off += got

		faded := p.fade != nil && p.fade.remaining <= 0
		if ok && !faded {
			continue
		}

		e.finishLocked(c, p, EventEnded)
		c.active = nil
		if c.queued != nil && c.queued.tight {
			// Gapless chain: the promoted sound fills the rest of this tick.
			e.promoteLocked(c)
			continue
		}
		return
	}
}

// readUnlocked pulls up to len(buf) frames from p's source with the engine
// lock released, so a stalled decode never blocks dispatcher calls. The
// playback is marked as being read so a concurrent release cannot close
// the source out from under the Stream call. Callers must re-verify the
// playback's slot after it returns.
func (e *Engine) readUnlocked(p *playback, buf [][2]float64) (int, bool) {
	p.reading = true
	e.mu.Unlock()

	n := 0
	ok := true
	for n < len(buf) && ok {
		var m int
		m, ok = p.src.Stream(buf[n:])
		n += m
	}

	e.mu.Lock()
	p.reading = false
	e.reapLocked()
	return n, ok
}

// promoteLocked makes the queued sound the active one, firing the fade the
// queue request carried for whatever it supersedes.
func (e *Engine) promoteLocked(c *channel) {
	q := c.queued
	c.queued = nil
	if c.active != nil {
		e.supersedeLocked(c, q.fadeout)
	}
	c.active = q
	zlog.Debug().Msgf("mixer: channel %d promoted %s", c.index, q.id)
}

// supersedeLocked removes the channel's active sound in favor of a
// replacement. With fade > 0 it moves to the fading slot and ramps out;
// otherwise it is cut at once, firing its end event.
func (e *Engine) supersedeLocked(c *channel, fade time.Duration) {
	p := c.active
	c.active = nil

	if fade <= 0 {
		if c.fading != nil {
			e.finishLocked(c, c.fading, EventStopped)
			c.fading = nil
			c.hold = false
		}
		if p != nil {
			e.finishLocked(c, p, EventStopped)
		}
		return
	}
	if p == nil {
		return
	}
	if c.fading != nil {
		e.finishLocked(c, c.fading, EventStopped)
	}
	if p.fade == nil {
		p.fade = newEnvelope(e.framesIn(fade), 1.0)
	}
	c.fading = p
	c.hold = !e.cfg.FadeOverlap
}

// finishLocked releases p and notifies the application if the channel has
// an end event installed. A failed source records its error text in the
// last-error slot; the channel degrades to silence either way.
func (e *Engine) finishLocked(c *channel, p *playback, t EventType) {
	e.releaseLocked(p)
	if c.endEvent != EventNone {
		e.sendEventLocked(Event{Type: t, Channel: c.index, Code: c.endEvent, Name: p.name})
	}
	zlog.Debug().Msgf("mixer: channel %d %s %s", c.index, t, p.id)
}

// releaseLocked closes p's source. While a mix-tick read is still inside
// the source, the close is deferred to the graveyard instead; Stream and
// Close never run concurrently on the same source.
func (e *Engine) releaseLocked(p *playback) {
	if p.reading {
		e.graveyard = append(e.graveyard, p)
		return
	}
	if err := p.src.Err(); err != nil {
		e.RecordError(err.Error())
		zlog.Debug().Msgf("mixer: source %s failed: %v", p.id, err)
	}
	_ = p.src.Close()
}

// reapLocked closes graveyard sources whose in-flight read has returned.
func (e *Engine) reapLocked() {
	if len(e.graveyard) == 0 {
		return
	}
	kept := e.graveyard[:0]
	for _, p := range e.graveyard {
		if p.reading {
			kept = append(kept, p)
			continue
		}
		if err := p.src.Err(); err != nil {
			e.RecordError(err.Error())
		}
		_ = p.src.Close()
	}
	e.graveyard = kept
}

// sendEventLocked sends an event without blocking. The mix tick runs inside
// the audio callback; a full queue drops the event rather than stalling it.
func (e *Engine) sendEventLocked(ev Event) {
	if e.closed {
		return
	}
	select {
	case e.eventCh <- ev:
	default:
		zlog.Debug().Msgf("mixer: event queue full, dropped %s for channel %d", ev.Type, ev.Channel)
	}
}

func (e *Engine) channelLocked(ch int) (*channel, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if ch < 0 || ch >= len(e.channels) {
		return nil, ErrInvalidChannel
	}
	return e.channels[ch], nil
}

// framesIn converts a duration to frames at the engine rate, never below
// one frame for a positive duration.
func (e *Engine) framesIn(d time.Duration) int64 {
	f := int64(d) * int64(e.cfg.SampleRate) / int64(time.Second)
	if f < 1 {
		f = 1
	}
	return f
}
