package output

import (
	"sync"
	"time"
)

type nullSettings struct {
	// TickIntervalMs paces automatic ticks; 0 means the caller drives
	// ticks manually via Tick.
	TickIntervalMs int `mapstructure:"tick_interval_ms"`
}

// NullBackend discards all output. With a tick interval it paces the mix
// loop on a goroutine, standing in for a real device in headless runs;
// without one, ticks are caller-driven, which tests rely on.
type NullBackend struct {
	ticker   Ticker
	interval time.Duration

	mu   sync.Mutex
	buf  [][2]float64
	stop chan struct{}
}

// NewNullBackend creates a null backend ticking every intervalMs
// milliseconds, or caller-driven when intervalMs is 0.
func NewNullBackend(opts Options, intervalMs int, t Ticker) *NullBackend {
	return &NullBackend{
		ticker:   t,
		interval: time.Duration(intervalMs) * time.Millisecond,
		buf:      make([][2]float64, opts.BufferFrames),
	}
}

func (b *NullBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.interval <= 0 || b.stop != nil {
		return nil
	}
	stop := make(chan struct{})
	b.stop = stop
	go b.loop(stop)
	return nil
}

func (b *NullBackend) loop(stop chan struct{}) {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			b.Tick()
		}
	}
}

// Tick runs one mix tick into the discard buffer.
func (b *NullBackend) Tick() {
	b.ticker.Mix(b.buf)
}

func (b *NullBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
	return nil
}
