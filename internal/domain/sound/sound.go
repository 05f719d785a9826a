// Package sound provides the core playback domain types.
package sound

import "time"

// Source produces decoded stereo PCM frames on demand. The signature of
// Stream follows the beep streamer contract: it fills samples with up to
// len(samples) frames and reports how many were written. ok is false once
// the source is drained (or has failed; Err distinguishes the two). The
// mixer owns the source for the lifetime of the playback and calls Close
// exactly once when the playback is destroyed, never concurrently with a
// Stream call. Implementations need no locking of their own.
type Source interface {
	Stream(samples [][2]float64) (n int, ok bool)
	Err() error
	Close() error
}

// Request describes one sound to be played or queued on a channel.
type Request struct {
	Source Source // decoded sample stream, ownership passes to the mixer
	Name   any    // opaque caller token, returned verbatim by name queries

	// Tight marks the sound as eligible for gapless chaining onto the end
	// of the sound before it.
	Tight bool

	// Fadeout is applied to the sound this request supersedes: the previous
	// active sound for a play request, or the active sound at promotion
	// time for a queue request. Zero cuts instantly.
	Fadeout time.Duration

	// StartPaused pauses the channel atomically with the assignment so no
	// frame is mixed before the caller can adjust state. Only meaningful
	// for play requests.
	StartPaused bool
}
