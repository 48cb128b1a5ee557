package recorder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"datarecorder/internal/config"
	"datarecorder/internal/model"
)

// barPeriod is the fixed bar interval.
const barPeriod = time.Minute

// VolumePolicy decides which tick supplies a bar's volume and open interest.
//
// Both values are cumulative session counters, so a bar carries a snapshot of
// them rather than a sum.
type VolumePolicy int

const (
	// VolumeAtOpen keeps volume and open interest at the values of the first tick
	// of the minute. High, low and close still follow every tick.
	VolumeAtOpen VolumePolicy = iota

	// VolumeAtLatest updates volume and open interest on every tick of the minute.
	VolumeAtLatest
)

// ParseVolumePolicy maps a settings value to a VolumePolicy.
func ParseVolumePolicy(s string) (VolumePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", config.VolumePolicyOpen:
		return VolumeAtOpen, nil
	case config.VolumePolicyLatest:
		return VolumeAtLatest, nil
	default:
		return 0, fmt.Errorf("%w: unknown volume policy %q", config.ErrInvalidSettings, s)
	}
}

// barSlot holds the bar state of one instrument. A slot is Empty until its first
// tick and Accumulating afterwards.
type barSlot struct {
	bar          model.Bar
	accumulating bool
}

// BarAggregator folds ticks into one-minute bars, one slot per bar-subscribed
// instrument.
//
// A bar is completed only when the first tick of a later minute arrives for the
// same instrument; there is no timer. BarAggregator is not safe for concurrent
// use: it is owned by the engine's single event-processing goroutine.
type BarAggregator struct {
	slots  map[string]*barSlot
	policy VolumePolicy
}

// NewBarAggregator creates an aggregator with an Empty slot for every code.
func NewBarAggregator(codes []string, policy VolumePolicy) *BarAggregator {
	slots := make(map[string]*barSlot, len(codes))
	for _, c := range codes {
		slots[c] = &barSlot{}
	}
	return &BarAggregator{slots: slots, policy: policy}
}

// Tracks reports whether code has a bar slot.
func (a *BarAggregator) Tracks(code string) bool {
	_, ok := a.slots[code]
	return ok
}

// Fold folds tick into its instrument's bar.
//
// When the tick belongs to a later minute than the held bar, the held bar is
// returned as completed (ok is true) and the slot restarts from tick. Ticks for
// untracked instruments are ignored.
func (a *BarAggregator) Fold(tick model.Tick) (completed model.Bar, ok bool) {
	// Only bar-subscribed instruments have a slot
	slot, tracked := a.slots[tick.Code]
	if !tracked {
		return model.Bar{}, false
	}

	// First tick of the session opens the bar
	if !slot.accumulating {
		slot.bar = openBar(tick)
		slot.accumulating = true
		return model.Bar{}, false
	}

	// A later minute completes the held bar. The returned value is a copy, so
	// reopening the slot cannot alter it.
	if !bucket(tick.Timestamp).Equal(slot.bar.Start) {
		completed = slot.bar
		slot.bar = openBar(tick)
		return completed, true
	}

	// Same minute: extend the price range and move the close
	bar := &slot.bar
	if tick.LastPrice.GreaterThan(bar.High) {
		bar.High = tick.LastPrice
	}
	if tick.LastPrice.LessThan(bar.Low) {
		bar.Low = tick.LastPrice
	}
	bar.Close = tick.LastPrice

	// Volume and open interest stay at the opening tick unless told otherwise
	if a.policy == VolumeAtLatest {
		bar.Volume = tick.Volume
		bar.OpenInterest = tick.OpenInterest
	}
	return model.Bar{}, false
}

// Current returns the in-progress bar of code, if any.
func (a *BarAggregator) Current(code string) (model.Bar, bool) {
	slot, ok := a.slots[code]
	if !ok || !slot.accumulating {
		return model.Bar{}, false
	}
	return slot.bar, true
}

// Drain completes every Accumulating bar and resets its slot to Empty.
// Bars are returned ordered by instrument code.
func (a *BarAggregator) Drain() []model.Bar {
	// Collect the open slots in a stable order
	codes := make([]string, 0, len(a.slots))
	for code, slot := range a.slots {
		if slot.accumulating {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	// Hand out each bar and return its slot to Empty
	bars := make([]model.Bar, 0, len(codes))
	for _, code := range codes {
		slot := a.slots[code]
		bars = append(bars, slot.bar)
		*slot = barSlot{}
	}
	return bars
}

// openBar starts a bar from the first tick of a minute.
func openBar(t model.Tick) model.Bar {
	start := bucket(t.Timestamp)
	return model.Bar{
		Code:      t.Code,
		Symbol:    t.Symbol,
		Exchange:  t.Exchange,
		Date:      t.Date,
		Time:      start.Format(model.BarTimeLayout),
		Start:     start,
		Timestamp: t.Timestamp,

		// All four prices start at the opening trade
		Open:  t.LastPrice,
		High:  t.LastPrice,
		Low:   t.LastPrice,
		Close: t.LastPrice,

		// Cumulative counters as of the opening tick
		Volume:       t.Volume,
		OpenInterest: t.OpenInterest,
	}
}

// bucket identifies the bar period of ts: the full timestamp truncated to the
// minute, so 09:30 and 10:30 are different bars.
func bucket(ts time.Time) time.Time {
	return ts.Truncate(barPeriod)
}
