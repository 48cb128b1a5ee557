// Package recorder implements the market-data recording engine.
//
// The engine subscribes to the configured instruments, records every tick of
// tick-subscribed instruments, and folds the ticks of bar-subscribed instruments
// into one-minute bars that are written as soon as the next minute begins.
// Records of instruments with an active-contract alias are written a second time
// under the alias code.
//
// Processing is strictly sequential: one tick is fully recorded, folded and
// flushed before the next is looked at. The engine holds no locks; callers must
// deliver ticks from a single goroutine, as feed.Hub does.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"datarecorder/internal/alias"
	"datarecorder/internal/config"
	"datarecorder/internal/model"
)

// Gateway is the market-data feed the engine subscribes through.
type Gateway interface {
	// Subscribe registers interest in code on the named feed.
	Subscribe(code, feed string) error

	// RegisterTickHandler registers the function every tick event is delivered to.
	RegisterTickHandler(handler func(model.TickEvent))
}

// Sink is where the engine sends records and log lines.
type Sink interface {
	WriteRecord(ctx context.Context, store, series string, rec model.Record) error
	WriteLog(text string)
	WriteRejection(code string, err error)
}

// Options holds optional engine parameters.
type Options struct {
	// TickStore and MinuteStore name the stores ticks and bars are written to.
	TickStore   string
	MinuteStore string

	// Location is the time zone of feed date/time strings. Nil means UTC.
	Location *time.Location
}

// Engine routes tick events to the tick recorder and the bar aggregator.
type Engine struct {
	enabled bool

	sink        Sink
	location    *time.Location
	minuteStore string
	aliases     *alias.Table

	tickCodes map[string]struct{}
	ticks     *TickRecorder
	bars      *BarAggregator
}

// New configures an engine from resolved recording settings.
//
// When rec.Working is false the engine is a no-op: nothing is subscribed and no
// handler is registered with gw. Otherwise every distinct (code, feed) pair of
// the tick and bar lists is subscribed once and the engine registers itself as
// gw's tick handler. Any returned error is a startup failure.
func New(rec config.Recording, gw Gateway, sink Sink, opts Options) (*Engine, error) {
	if !rec.Working {
		return &Engine{}, nil
	}

	if opts.TickStore == "" {
		opts.TickStore = config.DefaultTickStore
	}
	if opts.MinuteStore == "" {
		opts.MinuteStore = config.DefaultMinuteStore
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	aliases, err := alias.New(rec.Active)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidSettings, err)
	}

	policy, err := ParseVolumePolicy(rec.VolumePolicy)
	if err != nil {
		return nil, err
	}

	subs, err := subscriptionUnion(rec.Tick, rec.Bar)
	if err != nil {
		return nil, err
	}

	tickCodes := make(map[string]struct{}, len(rec.Tick))
	for _, s := range rec.Tick {
		tickCodes[s.Code] = struct{}{}
	}
	barCodes := make([]string, 0, len(rec.Bar))
	for _, s := range rec.Bar {
		barCodes = append(barCodes, s.Code)
	}

	e := &Engine{
		enabled:     true,
		sink:        sink,
		location:    opts.Location,
		minuteStore: opts.MinuteStore,
		aliases:     aliases,
		tickCodes:   tickCodes,
		ticks:       NewTickRecorder(sink, aliases, opts.TickStore),
		bars:        NewBarAggregator(barCodes, policy),
	}

	for _, s := range subs {
		if err := gw.Subscribe(s.Code, s.Feed); err != nil {
			return nil, fmt.Errorf("subscribe %s on %s: %w", s.Code, s.Feed, err)
		}
	}
	gw.RegisterTickHandler(e.OnTick)

	return e, nil
}

// subscriptionUnion returns the distinct (code, feed) pairs of both lists in
// settings order. A code listed on two different feeds is refused because both
// feeds would deliver its ticks.
func subscriptionUnion(lists ...[]config.Subscription) ([]config.Subscription, error) {
	feedOf := make(map[string]string)
	var out []config.Subscription
	for _, list := range lists {
		for _, s := range list {
			feed, seen := feedOf[s.Code]
			if !seen {
				feedOf[s.Code] = s.Feed
				out = append(out, s)
				continue
			}
			if feed != s.Feed {
				return nil, fmt.Errorf("%w: %s subscribed on both %s and %s", config.ErrInvalidSettings, s.Code, feed, s.Feed)
			}
		}
	}
	return out, nil
}

// Enabled reports whether the engine records anything.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// OnTick is the tick handler registered with the gateway. Errors have already
// been logged by the sink and are not reported back to the feed.
func (e *Engine) OnTick(ev model.TickEvent) {
	_ = e.Process(ev)
}

// Process records and folds one tick event.
//
// Ticks for instruments in neither subscription list are ignored without any
// write or log line. A malformed tick of a subscribed instrument is rejected and
// skipped. The returned error joins storage failures; processing of later ticks
// is unaffected by it.
func (e *Engine) Process(ev model.TickEvent) error {
	if !e.enabled {
		return nil
	}

	code := strings.TrimSpace(ev.Code)
	_, recordTick := e.tickCodes[code]
	foldBar := e.bars.Tracks(code)
	if !recordTick && !foldBar {
		return nil
	}

	tick, err := model.NewTick(ev, e.location)
	if err != nil {
		e.sink.WriteRejection(code, err)
		return err
	}

	ctx := context.Background()
	var errs []error
	if recordTick {
		if err := e.ticks.Record(ctx, tick); err != nil {
			errs = append(errs, err)
		}
	}
	if foldBar {
		if bar, completed := e.bars.Fold(tick); completed {
			if err := e.writeBar(ctx, bar); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FlushAll writes every in-progress bar as completed and resets its slot.
//
// The last bar of a session has no following tick to complete it, so FlushAll
// must be called on controlled shutdown or at end of session. Calling it again
// without new ticks writes nothing.
func (e *Engine) FlushAll() error {
	if !e.enabled {
		return nil
	}

	ctx := context.Background()
	var errs []error
	for _, bar := range e.bars.Drain() {
		if err := e.writeBar(ctx, bar); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CurrentBar returns the in-progress bar of code, if any.
func (e *Engine) CurrentBar(code string) (model.Bar, bool) {
	if !e.enabled {
		return model.Bar{}, false
	}
	return e.bars.Current(code)
}

// writeBar writes a completed bar under its code and alias and logs it once.
func (e *Engine) writeBar(ctx context.Context, bar model.Bar) error {
	var errs []error

	primaryErr := e.sink.WriteRecord(ctx, e.minuteStore, bar.Code, bar)
	if primaryErr != nil {
		errs = append(errs, primaryErr)
	}

	if code, ok := e.aliases.Resolve(bar.Code); ok {
		if err := e.sink.WriteRecord(ctx, e.minuteStore, code, bar); err != nil {
			errs = append(errs, err)
		}
	}

	if primaryErr == nil {
		e.sink.WriteLog(fmt.Sprintf("recorded bar %s, time: %s, O: %s, H: %s, L: %s, C: %s",
			bar.Code, bar.Time, bar.Open, bar.High, bar.Low, bar.Close))
	}

	return errors.Join(errs...)
}
