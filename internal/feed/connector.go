// Package feed connects the recorder to its market-data feeds.
//
// Every feed identifier named in the recording settings maps to one Connector.
// The Hub collects subscriptions per feed, starts the connectors, and merges
// their tick streams into a single sequential stream for the engine.
package feed

import (
	"context"
	"errors"

	"datarecorder/internal/model"
)

var (
	// ErrUnknownFeed indicates a subscription on a feed with no connector.
	ErrUnknownFeed = errors.New("unknown feed")

	// ErrHubRunning indicates a subscription change after the hub started.
	ErrHubRunning = errors.New("feed hub already running")

	// ErrHubNotStarted indicates delivery requested while Start is still
	// connecting the feeds.
	ErrHubNotStarted = errors.New("feed hub not started")

	// ErrNoHandler indicates a hub started without a tick handler.
	ErrNoHandler = errors.New("no tick handler registered")
)

// Connector streams tick events for a set of instrument codes.
type Connector interface {
	// SubscribeToTicks starts streaming ticks for codes. The returned channel is
	// closed when the stream ends or ctx is cancelled.
	SubscribeToTicks(ctx context.Context, codes []string) (<-chan model.TickEvent, error)
}
