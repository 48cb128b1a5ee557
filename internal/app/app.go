// Package app assembles a recorder from its configuration. Both the live
// service and the offline replay command are built here, differing only in the
// connectors they supply.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"datarecorder/internal/config"
	"datarecorder/internal/feed"
	"datarecorder/internal/recorder"
	"datarecorder/internal/service"
	"datarecorder/internal/sink"
	"datarecorder/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global zerolog logger.
func SetupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// Recorder is an assembled, not yet started recorder.
type Recorder struct {
	Store   storage.Store
	Hub     *feed.Hub
	Engine  *recorder.Engine
	Service *service.RecorderService
}

// Options holds optional build parameters.
type Options struct {
	// Store overrides the configured storage backend.
	Store storage.Store

	// Registerer receives the sink metrics. Nil disables metrics.
	Registerer prometheus.Registerer
}

// Build opens storage, resolves the recording settings and configures the
// engine against a hub over connectors. Any error is a startup failure; the
// store is closed before returning one.
func Build(ctx context.Context, cfg *config.Config, connectors map[string]feed.Connector, opts Options) (*Recorder, error) {
	rec, err := cfg.Recording.Resolve()
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", config.ErrInvalidSettings, cfg.Timezone, err)
	}

	store := opts.Store
	if store == nil {
		if store, err = storage.Open(ctx, cfg.Storage); err != nil {
			return nil, err
		}
		// The memory driver is the default when no storage section is given
		if cfg.Storage.Driver == "" || cfg.Storage.Driver == "memory" {
			log.Warn().
				Str("storage", "memory").
				Msg("recording to process memory, ticks and bars are lost on exit")
		}
	}

	var metrics *sink.Metrics
	if opts.Registerer != nil {
		metrics = sink.NewMetrics(opts.Registerer)
	}
	s := sink.New(store, log.Logger, sink.Config{Metrics: metrics})

	hub := feed.NewHub(connectors)
	engine, err := recorder.New(rec, hub, s, recorder.Options{
		TickStore:   cfg.Storage.TickStore,
		MinuteStore: cfg.Storage.MinuteStore,
		Location:    loc,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	log.Info().
		Bool("working", rec.Working).
		Int("tick", len(rec.Tick)).
		Int("bar", len(rec.Bar)).
		Int("aliases", len(rec.Active)).
		Str("storage", cfg.Storage.Driver).
		Msg("recorder configured")

	return &Recorder{
		Store:   store,
		Hub:     hub,
		Engine:  engine,
		Service: service.NewRecorderService(hub, engine),
	}, nil
}

// WebsocketConnectors creates one connector per configured feed.
func WebsocketConnectors(feeds []config.FeedConfig) (map[string]feed.Connector, error) {
	connectors := make(map[string]feed.Connector, len(feeds))
	for _, f := range feeds {
		wc, err := feed.NewWebsocketConnector(feed.ConnectorConfig{
			Name:       f.Name,
			Endpoint:   f.Endpoint,
			MaxSymbols: f.MaxSymbols,
		})
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", f.Name, err)
		}
		connectors[f.Name] = wc
	}
	return connectors, nil
}

// ReplayConnectors serves every feed named in the recording settings from the
// capture at path.
func ReplayConnectors(settings config.RecordingSettings, path string) map[string]feed.Connector {
	connectors := make(map[string]feed.Connector)
	for _, list := range [][][]string{settings.Tick, settings.Bar} {
		for _, pair := range list {
			if len(pair) == 2 {
				connectors[strings.TrimSpace(pair[1])] = feed.NewReplayConnector(path)
			}
		}
	}
	return connectors
}
