// Package decode opens compressed audio streams as mixer sample sources.
package decode

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/mochuelitoval/renpy/internal/domain/sound"
)

// ErrUnsupportedFormat is returned when the format hint names no known
// decoder.
var ErrUnsupportedFormat = errors.New("unsupported format hint")

// resampleQuality trades CPU for fidelity; 4 matches what the upstream
// examples ship with.
const resampleQuality = 4

// Open decodes rc according to the format hint (a file extension such as
// ".ogg", case-insensitive) and returns a source producing stereo frames at
// rate Hz, resampling when the encoded rate differs. Decoding the header
// happens here, in the caller's context, never on the mix tick. On error
// rc is closed.
func Open(rc io.ReadCloser, hint string, rate int) (sound.Source, error) {
	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)

	switch strings.ToLower(hint) {
	case ".mp3":
		s, f, err = mp3.Decode(rc)
	case ".ogg", ".oga":
		s, f, err = vorbis.Decode(rc)
	case ".wav":
		s, f, err = wav.Decode(rc)
	case ".flac":
		s, f, err = flac.Decode(rc)
	default:
		_ = rc.Close()
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", hint)
	}
	if err != nil {
		_ = rc.Close()
		return nil, errors.Wrapf(err, "failed to decode %s stream", hint)
	}

	var st beep.Streamer = s
	if int(f.SampleRate) != rate {
		st = beep.Resample(resampleQuality, f.SampleRate, beep.SampleRate(rate), s)
	}
	return &source{st: st, closer: s}, nil
}

// Supported reports whether Open knows a decoder for the hint.
func Supported(hint string) bool {
	switch strings.ToLower(hint) {
	case ".mp3", ".ogg", ".oga", ".wav", ".flac":
		return true
	}
	return false
}

// source adapts a beep streamer chain to the mixer's Source interface.
// Closing releases the decoder, which owns the underlying reader.
type source struct {
	st     beep.Streamer
	closer beep.StreamSeekCloser
}

func (s *source) Stream(samples [][2]float64) (int, bool) {
	return s.st.Stream(samples)
}

func (s *source) Err() error {
	return s.st.Err()
}

func (s *source) Close() error {
	return s.closer.Close()
}
