// Package service runs the recorder: it owns the lifecycle of the feed stream
// and the engine that consumes it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// TickSource connects to the feeds in Start and delivers ticks to the engine in
// Run until ctx is cancelled or the source is exhausted.
type TickSource interface {
	Start(ctx context.Context) error
	Run(ctx context.Context) error
}

// Flusher completes in-progress bars.
type Flusher interface {
	FlushAll() error
}

// RecorderService ties a tick source to the engine it feeds.
//
// The engine is not safe for concurrent use, so Stop waits for the source to
// return before flushing: no tick can be delivered while FlushAll runs.
type RecorderService struct {
	source TickSource
	engine Flusher

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// NewRecorderService creates a stopped RecorderService.
func NewRecorderService(source TickSource, engine Flusher) *RecorderService {
	return &RecorderService{source: source, engine: engine}
}

// Start connects the tick source and then delivers ticks in the background.
// A feed that cannot be connected fails Start and leaves the service stopped.
func (rs *RecorderService) Start(ctx context.Context) error {
	if !rs.started.CompareAndSwap(false, true) {
		return errors.New("recorder service has already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	// Connect the feeds before returning
	if err := rs.source.Start(ctx); err != nil {
		cancel()
		rs.started.Store(false)
		return fmt.Errorf("start tick source: %w", err)
	}

	rs.cancel = cancel
	rs.done = make(chan struct{})

	// Deliver until cancelled or every feed has ended
	go func() {
		defer close(rs.done)
		rs.runErr = rs.source.Run(ctx)
		if rs.runErr != nil && !errors.Is(rs.runErr, context.Canceled) {
			log.Error().Err(rs.runErr).Msg("tick source stopped")
		}
	}()

	log.Info().Msg("RecorderService started")
	return nil
}

// Done is closed once the tick source has returned, whether from Stop or
// because every feed ended.
func (rs *RecorderService) Done() <-chan struct{} {
	return rs.done
}

// Stop cancels the tick source, waits for it, and flushes every in-progress
// bar. The source's own error is returned unless it is a cancellation.
func (rs *RecorderService) Stop() error {
	if !rs.started.CompareAndSwap(true, false) {
		return errors.New("service not started")
	}

	// The source must return before the flush touches the engine
	rs.cancel()
	<-rs.done

	// Cancellation is the expected way for the source to end
	var errs []error
	if rs.runErr != nil && !errors.Is(rs.runErr, context.Canceled) {
		errs = append(errs, fmt.Errorf("tick source: %w", rs.runErr))
	}
	// Complete the bars still in progress
	if err := rs.engine.FlushAll(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}

	log.Info().Msg("RecorderService stopped")
	return errors.Join(errs...)
}
