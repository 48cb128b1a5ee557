package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"datarecorder/internal/model"

	"github.com/rs/zerolog/log"
)

// defaultHubBuffer is the capacity of the merged tick stream.
const defaultHubBuffer = 4096

// Hub routes subscriptions to connectors by feed identifier and delivers the
// merged tick stream to one handler.
//
// Subscribe and RegisterTickHandler are called while the engine is being
// configured. Start then connects every feed that received at least one code,
// and Run delivers the merged stream. The handler is only ever called from
// Run's goroutine, one tick at a time.
type Hub struct {
	connectors map[string]Connector

	mu      sync.Mutex
	codes   map[string][]string // feed -> codes in subscription order
	handler func(model.TickEvent)
	stream  <-chan model.TickEvent
	stop    context.CancelFunc

	started atomic.Bool
	running atomic.Bool
}

// NewHub creates a Hub over connectors keyed by feed identifier.
func NewHub(connectors map[string]Connector) *Hub {
	return &Hub{
		connectors: connectors,
		codes:      make(map[string][]string),
	}
}

// Subscribe registers code on feed. Subscribing a code twice on the same feed
// is a no-op.
func (h *Hub) Subscribe(code, feed string) error {
	if h.started.Load() {
		return ErrHubRunning
	}
	if _, ok := h.connectors[feed]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeed, feed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.codes[feed] {
		if c == code {
			return nil
		}
	}
	h.codes[feed] = append(h.codes[feed], code)
	return nil
}

// RegisterTickHandler sets the function every tick is delivered to, replacing
// any earlier handler.
func (h *Hub) RegisterTickHandler(handler func(model.TickEvent)) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Subscriptions returns the codes subscribed on feed.
func (h *Hub) Subscriptions(feed string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.codes[feed]...)
}

// Start subscribes every feed that received at least one code and begins
// merging their streams. The connectors live until ctx is done. A connector
// that fails to start cancels the ones already started and the error is
// returned; the hub may then be started again.
func (h *Hub) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHubRunning
	}

	h.mu.Lock()
	handler := h.handler
	feeds := make([]string, 0, len(h.codes))
	for f := range h.codes {
		feeds = append(feeds, f)
	}
	h.mu.Unlock()
	sort.Strings(feeds)

	if handler == nil {
		h.started.Store(false)
		return ErrNoHandler
	}

	ctx, cancel := context.WithCancel(ctx)

	// Connect feeds in name order, failing on the first error
	streams := make([]<-chan model.TickEvent, 0, len(feeds))
	for _, feed := range feeds {
		codes := h.Subscriptions(feed)
		ch, err := h.connectors[feed].SubscribeToTicks(ctx, codes)
		if err != nil {
			cancel()
			h.started.Store(false)
			return fmt.Errorf("subscribe to feed %s: %w", feed, err)
		}
		log.Info().Str("feed", feed).Strs("codes", codes).Msg("feed subscribed")
		streams = append(streams, ch)
	}

	h.mu.Lock()
	h.stream = fanIn(ctx, streams)
	h.stop = cancel
	h.mu.Unlock()
	return nil
}

// Run delivers the merged stream to the handler until ctx is cancelled or
// every stream has ended, then stops the connectors. It calls Start first if
// the hub has not been started.
func (h *Hub) Run(ctx context.Context) error {
	if !h.started.Load() {
		if err := h.Start(ctx); err != nil {
			return err
		}
	}
	if !h.running.CompareAndSwap(false, true) {
		return ErrHubRunning
	}

	h.mu.Lock()
	handler, merged, stop := h.handler, h.stream, h.stop
	h.mu.Unlock()
	if merged == nil {
		h.running.Store(false)
		return ErrHubNotStarted
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-merged:
			if !ok {
				log.Info().Msg("all feeds ended")
				return nil
			}
			handler(ev)
		}
	}
}

// fanIn merges the feed streams into one channel, closed once every input has
// closed or ctx is done. Order is preserved within each input.
func fanIn(ctx context.Context, inputs []<-chan model.TickEvent) <-chan model.TickEvent {
	dest := make(chan model.TickEvent, defaultHubBuffer)
	var wg sync.WaitGroup
	wg.Add(len(inputs))

	for _, ch := range inputs {
		go func(c <-chan model.TickEvent) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-c:
					if !ok {
						return
					}
					select {
					case dest <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(dest)
	}()

	return dest
}
