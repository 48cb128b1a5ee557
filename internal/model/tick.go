package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the layout of TickEvent.Date and Bar.Date.
	DateLayout = "20060102"

	// TimeLayout is the layout of TickEvent.Time. A fractional second after the
	// seconds field is accepted when parsing even though the layout omits it.
	TimeLayout = "15:04:05"

	// BarTimeLayout is the layout of Bar.Time.
	BarTimeLayout = "15:04"

	timestampLayout = DateLayout + " " + TimeLayout
)

// ErrMalformedTick indicates a tick event that cannot be recorded.
var ErrMalformedTick = errors.New("malformed tick")

// NewTick validates a feed event and builds the immutable Tick for it.
//
// The date and time strings are merged into one timestamp in loc (UTC when nil).
// A missing code, an unparsable date/time or a missing last price rejects the
// event with ErrMalformedTick; other missing numbers are recorded as zero.
func NewTick(ev TickEvent, loc *time.Location) (Tick, error) {
	if loc == nil {
		loc = time.UTC
	}

	code := strings.TrimSpace(ev.Code)
	if code == "" {
		return Tick{}, fmt.Errorf("%w: empty instrument code", ErrMalformedTick)
	}

	ts, err := time.ParseInLocation(timestampLayout, strings.TrimSpace(ev.Date)+" "+strings.TrimSpace(ev.Time), loc)
	if err != nil {
		return Tick{}, fmt.Errorf("%w: %s: bad date/time %q %q: %v", ErrMalformedTick, code, ev.Date, ev.Time, err)
	}

	if !ev.LastPrice.Valid {
		return Tick{}, fmt.Errorf("%w: %s: missing last price", ErrMalformedTick, code)
	}

	var depth []DepthLevel
	if len(ev.Depth) > 0 {
		depth = make([]DepthLevel, len(ev.Depth))
		copy(depth, ev.Depth)
	}

	return Tick{
		Code:      code,
		Symbol:    ev.Symbol,
		Exchange:  ev.Exchange,
		Date:      ev.Date,
		Time:      ev.Time,
		Timestamp: ts,

		LastPrice:    ev.LastPrice.Decimal,
		Volume:       orZero(ev.Volume),
		OpenInterest: orZero(ev.OpenInterest),

		BidPrice1:  orZero(ev.BidPrice1),
		BidVolume1: orZero(ev.BidVolume1),
		AskPrice1:  orZero(ev.AskPrice1),
		AskVolume1: orZero(ev.AskVolume1),
		Depth:      depth,

		OpenPrice:     orZero(ev.OpenPrice),
		HighPrice:     orZero(ev.HighPrice),
		LowPrice:      orZero(ev.LowPrice),
		PreClosePrice: orZero(ev.PreClosePrice),
		UpperLimit:    orZero(ev.UpperLimit),
		LowerLimit:    orZero(ev.LowerLimit),
	}, nil
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
