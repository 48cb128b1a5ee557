// Package sink is the recorder's only path to the document store and the log.
//
// The engine hands completed ticks and bars to a Sink together with the store
// name and series identity they belong to. A failed insert is logged with the
// full encoded record so it can be replayed by hand, counted, and returned to
// the caller; it never stops the engine.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datarecorder/internal/model"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ErrWriteFailed indicates that a store insert failed.
var ErrWriteFailed = errors.New("storage write failed")

// defaultWriteTimeout bounds a single insert so that a stalled store cannot
// hold up the event loop indefinitely.
const defaultWriteTimeout = 5 * time.Second

// Store inserts a record into a named store under a series identity.
type Store interface {
	Insert(ctx context.Context, store, series string, rec model.Record) error
}

// Config holds optional Sink parameters.
type Config struct {
	// WriteTimeout bounds each insert. Zero uses the default of 5s.
	WriteTimeout time.Duration

	// Metrics receives write and rejection counts. Nil disables metrics.
	Metrics *Metrics
}

// Sink translates records into store inserts and log lines.
type Sink struct {
	store   Store
	logger  zerolog.Logger
	metrics *Metrics
	timeout time.Duration
}

// New creates a Sink writing to store and logging to logger.
func New(store Store, logger zerolog.Logger, cfg Config) *Sink {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Sink{
		store:   store,
		logger:  logger.With().Str("component", "sink").Logger(),
		metrics: cfg.Metrics,
		timeout: cfg.WriteTimeout,
	}
}

// WriteRecord inserts rec into storeName under series.
func (s *Sink) WriteRecord(ctx context.Context, storeName, series string, rec model.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Insert(ctx, storeName, series, rec); err != nil {
		s.metrics.writeFailed(storeName)

		event := s.logger.Error().
			Err(err).
			Str("store", storeName).
			Str("series", series).
			Time("recordTime", rec.RecordTime())
		if body, encErr := json.Marshal(rec); encErr == nil {
			event = event.RawJSON("record", body)
		}
		event.Msg("failed to write record")

		return fmt.Errorf("%w: %s/%s at %s: %v", ErrWriteFailed, storeName, series,
			rec.RecordTime().Format(time.RFC3339Nano), err)
	}

	s.metrics.written(storeName)
	return nil
}

// WriteLog emits one human-readable status line.
func (s *Sink) WriteLog(text string) {
	s.logger.Info().Msg(text)
}

// WriteRejection logs and counts a tick event that could not be recorded.
func (s *Sink) WriteRejection(code string, err error) {
	s.metrics.rejected()
	s.logger.Warn().Err(err).Str("code", code).Msg("rejected tick")
}
