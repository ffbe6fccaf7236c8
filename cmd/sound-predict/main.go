package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/sound-predict/internal/app"
	"github.com/petems/sound-predict/internal/audio"
	"github.com/petems/sound-predict/internal/config"
	"github.com/petems/sound-predict/internal/logging"
	"github.com/petems/sound-predict/internal/predict"
	"github.com/petems/sound-predict/internal/recording"
	"github.com/petems/sound-predict/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture; microphone permission is requested per recording
	capture, err := audio.New(cfg.Audio, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer capture.Close()

	client := predict.New(predict.Options{
		BaseURL: cfg.BaseURL,
		Timeout: time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		Logger:  log.With().Str("component", "predict").Logger(),
	})

	recordings := recording.NewList(cfg.RecordingsDir)

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, Version, Commit, log)

	// Create app with tray as status updater
	application := app.New(app.Config{
		Audio:         capture,
		Predictor:     client,
		Recordings:    recordings,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
		SaveConfig:    cfg.Save,
	})

	// Set app reference in tray and route list changes to it
	trayUI.SetApp(application)
	recordings.SetRenderer(trayUI)

	log.Info().Str("base_url", cfg.BaseURL).Str("recordings", cfg.RecordingsDir).Msg("sound-predict starting...")

	if cfg.CheckHealth {
		go func() {
			hctx, hcancel := context.WithTimeout(ctx, 5*time.Second)
			defer hcancel()
			application.CheckHealth(hctx)
		}()
	}

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}
