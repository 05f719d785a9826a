// Package main provides the demo player entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/mochuelitoval/renpy/internal/app/player"
	"github.com/mochuelitoval/renpy/internal/domain/sound"
	"github.com/mochuelitoval/renpy/internal/infra/config"
	"github.com/mochuelitoval/renpy/internal/infra/logger"
)

var (
	app         = kingpin.New("player", "multi-channel sound player")
	configPath  = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose     = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	backendName = app.Flag("backend", "Override audio backend (oto, null)").String()
	channel     = app.Flag("channel", "Channel to play on").Default("0").Int()
	tight       = app.Flag("tight", "Chain files gaplessly through the queue").Bool()
	fade        = app.Flag("fadeout", "Fade applied when stopping on interrupt").Default("0s").Duration()
	volume      = app.Flag("volume", "Channel volume 0..1").Default("1.0").Float64()
	files       = app.Arg("files", "Audio files to play in order").Required().ExistingFiles()
)

// endCode is the end-event identifier installed on the playback channel.
const endCode = 1

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, Output: "stderr"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *backendName != "" {
		cfg.Backend.Type = *backendName
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main playback logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ply, err := player.New(cfg)
	if err != nil {
		return err
	}
	defer ply.Close()

	if err := ply.Start(); err != nil {
		return fmt.Errorf("start failed (last error: %q): %w", ply.LastError(), err)
	}

	m := ply.Mixer()
	ch := *channel
	if err := m.SetEndEvent(ch, endCode); err != nil {
		return err
	}
	if err := m.SetVolume(ch, *volume); err != nil {
		return err
	}

	subID, events := ply.Subscribe(16)
	defer ply.Unsubscribe(subID)

	paths := *files
	if err := ply.PlayFile(ch, paths[0], sound.Request{Tight: *tight}); err != nil {
		return err
	}
	next := 1
	// A tight chain keeps one entry queued; the non-tight path plays each
	// file explicitly when the previous one ends.
	if *tight && next < len(paths) {
		if err := ply.QueueFile(ch, paths[next], sound.Request{Tight: true}); err != nil {
			return err
		}
		next++
	}
	remaining := len(paths)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	status := time.NewTicker(time.Second)
	defer status.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			zlog.Info().Msgf("finished: %v (%s)", ev.Name, ev.Type)
			remaining--
			if remaining == 0 {
				return nil
			}
			if next < len(paths) {
				var err error
				if *tight {
					err = ply.QueueFile(ch, paths[next], sound.Request{Tight: true})
				} else {
					err = ply.PlayFile(ch, paths[next], sound.Request{})
				}
				if err != nil {
					return err
				}
				next++
			}

		case <-status.C:
			if name, err := m.PlayingName(ch); err == nil && name != nil {
				pos, _ := m.Pos(ch)
				depth, _ := m.QueueDepth(ch)
				zlog.Info().Msgf("playing %v at %v (queued: %d)", name, pos.Round(time.Second), depth)
			}

		case <-sigCh:
			zlog.Info().Msg("Received shutdown signal...")
			if *fade > 0 {
				if err := m.Dequeue(ch, true); err != nil {
					return err
				}
				if err := m.Fadeout(ch, *fade); err != nil {
					return err
				}
				// Let the fade play out before closing the device.
				time.Sleep(*fade + 200*time.Millisecond)
			}
			return nil
		}
	}
}
