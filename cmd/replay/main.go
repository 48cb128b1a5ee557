/*
Package main replays a captured tick stream through the recorder.

Each line of the input is one JSON-encoded tick event. Ticks are recorded and
folded exactly as the live service would, using the same configuration, and
every in-progress bar is flushed when the capture is exhausted.

Usage:

	go run ./cmd/replay -config=config.yaml -input=ticks.jsonl
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"datarecorder/internal/app"
	"datarecorder/internal/config"

	"github.com/rs/zerolog/log"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to the service configuration")
	inputPath  = flag.String("input", "", "JSON-lines tick capture to replay")
)

func main() {
	flag.Parse()

	if err := validateFlags(); err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("failed to load configuration")
	}
	app.SetupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := app.Build(ctx, cfg, app.ReplayConnectors(cfg.Recording, *inputPath), app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure recorder")
	}
	defer func() {
		if err := rec.Store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	if !rec.Engine.Enabled() {
		log.Info().Msg("recording disabled, nothing to replay")
		return
	}

	if err := rec.Service.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start replay")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-rec.Service.Done():
		log.Info().Str("input", *inputPath).Msg("replay complete")
	case <-sig:
		log.Info().Msg("replay interrupted")
	}

	if err := rec.Service.Stop(); err != nil {
		log.Error().Err(err).Msg("replay finished with errors")
	}
}

func validateFlags() error {
	if *inputPath == "" {
		return fmt.Errorf("input path cannot be empty")
	}
	if _, err := os.Stat(*inputPath); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	return nil
}
