// Package player provides the process-wide sound system lifecycle: it owns
// the mix engine, the device backend and the end-event pump.
package player

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mochuelitoval/renpy/internal/app/mixer"
	"github.com/mochuelitoval/renpy/internal/app/notify"
	"github.com/mochuelitoval/renpy/internal/domain/sound"
	"github.com/mochuelitoval/renpy/internal/infra/config"
	"github.com/mochuelitoval/renpy/internal/infra/decode"
	"github.com/mochuelitoval/renpy/internal/infra/output"
)

// ErrBackendInit marks a failure to open the audio device at the requested
// parameters. The system stays unusable until a successful Start.
var ErrBackendInit = errors.New("audio backend init failed")

// Player wires the engine to a device backend and pumps end events to
// subscribers.
type Player struct {
	mu sync.Mutex

	engine  *mixer.Engine
	backend output.Backend
	notify  *notify.Manager

	started bool
	closed  bool
	done    chan struct{}
}

// New builds the system from configuration. The audio device is not opened
// until Start.
func New(cfg *config.Config) (*Player, error) {
	engine := mixer.New(mixer.Config{
		SampleRate:   cfg.Audio.Freq,
		Channels:     cfg.Audio.Channels,
		BufferFrames: cfg.Audio.Samples,
		FadeOverlap:  cfg.Audio.FadeOverlap,
	})

	backend, err := output.New(output.Options{
		Type:         cfg.Backend.Type,
		Settings:     cfg.Backend.Settings,
		SampleRate:   cfg.Audio.Freq,
		Mono:         cfg.Audio.Mono,
		BufferFrames: cfg.Audio.Samples,
	}, engine)
	if err != nil {
		engine.Close()
		return nil, errors.Wrap(err, "failed to create audio backend")
	}

	return &Player{
		engine:  engine,
		backend: backend,
		notify:  notify.NewManager(),
		done:    make(chan struct{}),
	}, nil
}

// Start opens the audio device and starts the event pump. The last-error
// slot is cleared on success.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("player is closed")
	}
	if p.started {
		return nil
	}

	if err := p.backend.Start(); err != nil {
		p.engine.RecordError(err.Error())
		return errors.Wrapf(ErrBackendInit, "%v", err)
	}
	p.engine.RecordError("")
	p.started = true

	go p.eventLoop()

	zlog.Info().Msgf("player: started, %d channels at %d Hz",
		p.engine.ChannelCount(), p.engine.SampleRate())
	return nil
}

// eventLoop drains engine end events into the subscriber broadcast. Exits
// when the engine closes its event channel.
func (p *Player) eventLoop() {
	defer close(p.done)
	for ev := range p.engine.Events() {
		zlog.Debug().Msgf("player: channel %d end event %d (%s)", ev.Channel, ev.Code, ev.Type)
		p.notify.Broadcast(ev)
	}
}

// Close shuts the backend and releases every channel. Idempotent and safe
// to call from any state, including after a failed Start.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	_ = p.backend.Close()
	p.engine.Close()
	if started {
		<-p.done
	}
	p.notify.Close()

	zlog.Info().Msg("player: stopped")
}

// Mixer exposes the dispatcher operation set.
func (p *Player) Mixer() *mixer.Engine {
	return p.engine
}

// Subscribe registers an end-event subscriber.
func (p *Player) Subscribe(buffer int) (string, <-chan mixer.Event) {
	return p.notify.Subscribe(buffer)
}

// Unsubscribe removes an end-event subscriber.
func (p *Player) Unsubscribe(id string) {
	p.notify.Unsubscribe(id)
}

// LastError returns the most recent failure text recorded by any
// operation, or "" when none.
func (p *Player) LastError() string {
	return p.engine.LastError()
}

// PlayFile opens path with the decoder matching its extension and plays it
// on channel ch. req.Source is filled in; a nil req.Name defaults to the
// path.
func (p *Player) PlayFile(ch int, path string, req sound.Request) error {
	src, err := p.openFile(path)
	if err != nil {
		return err
	}
	req.Source = src
	if req.Name == nil {
		req.Name = path
	}
	return p.engine.Play(ch, req)
}

// QueueFile opens path like PlayFile and queues it on channel ch.
func (p *Player) QueueFile(ch int, path string, req sound.Request) error {
	src, err := p.openFile(path)
	if err != nil {
		return err
	}
	req.Source = src
	if req.Name == nil {
		req.Name = path
	}
	return p.engine.Queue(ch, req)
}

func (p *Player) openFile(path string) (sound.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		p.engine.RecordError(err.Error())
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	src, err := decode.Open(f, filepath.Ext(path), p.engine.SampleRate())
	if err != nil {
		p.engine.RecordError(err.Error())
		return nil, err
	}
	return src, nil
}
