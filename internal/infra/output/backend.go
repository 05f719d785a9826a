// Package output provides the audio device backends that drive the mix
// tick.
package output

import (
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// Ticker is the mix callback a backend invokes once per output buffer.
type Ticker interface {
	Mix(samples [][2]float64)
}

// Backend is an opened audio output. Start may fail if the device cannot
// be acquired at the requested format; Close is idempotent.
type Backend interface {
	Start() error
	Close() error
}

// Options selects and parameterizes a backend. Settings carries
// backend-specific knobs and is decoded per type.
type Options struct {
	Type         string
	Settings     map[string]any
	SampleRate   int
	Mono         bool
	BufferFrames int
}

// New builds the backend named by opts.Type. The device itself is not
// touched until Start.
func New(opts Options, t Ticker) (Backend, error) {
	switch opts.Type {
	case "oto":
		var s otoSettings
		if err := decodeSettings(opts.Settings, &s); err != nil {
			return nil, err
		}
		return newOtoBackend(opts, s, t), nil
	case "null":
		var s nullSettings
		if err := decodeSettings(opts.Settings, &s); err != nil {
			return nil, err
		}
		return NewNullBackend(opts, s.TickIntervalMs, t), nil
	default:
		return nil, errors.Newf("unknown audio backend %q", opts.Type)
	}
}

func decodeSettings(in map[string]any, out any) error {
	if in == nil {
		return nil
	}
	if err := mapstructure.Decode(in, out); err != nil {
		return errors.Wrap(err, "failed to decode backend settings")
	}
	return nil
}
