// Package model defines core data types for the market-data recorder.
//
// This package contains the inbound feed event, the validated tick built from it,
// and the one-minute bar folded from ticks. All prices, sizes and counters use
// decimal.Decimal so that stored records carry exactly the values the feed sent.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a persistable tick or bar.
type Record interface {
	// InstrumentCode returns the concrete instrument the record was observed for.
	InstrumentCode() string

	// RecordTime returns the timestamp the record is ordered by in its series.
	RecordTime() time.Time
}

// DepthLevel is one price level of the order book beyond level 1.
type DepthLevel struct {
	BidPrice  decimal.Decimal `json:"bidPrice"`
	BidVolume decimal.Decimal `json:"bidVolume"`
	AskPrice  decimal.Decimal `json:"askPrice"`
	AskVolume decimal.Decimal `json:"askVolume"`
}

// TickEvent is a tick notification exactly as delivered by a feed.
//
// Date and time arrive as separate strings and numeric fields may be absent,
// so every number is nullable. A TickEvent is converted into a Tick before
// any recording logic sees it.
type TickEvent struct {
	Code     string `json:"code"`     // Instrument code the feed was subscribed with (e.g. "IF1604")
	Symbol   string `json:"symbol"`   // Exchange-native symbol
	Exchange string `json:"exchange"` // Exchange code (e.g. "CFFEX")
	Date     string `json:"date"`     // Trading date, 20060102
	Time     string `json:"time"`     // Time of day, 15:04:05 with optional fraction

	LastPrice    decimal.NullDecimal `json:"lastPrice"`
	Volume       decimal.NullDecimal `json:"volume"`
	OpenInterest decimal.NullDecimal `json:"openInterest"`

	BidPrice1  decimal.NullDecimal `json:"bidPrice1"`
	BidVolume1 decimal.NullDecimal `json:"bidVolume1"`
	AskPrice1  decimal.NullDecimal `json:"askPrice1"`
	AskVolume1 decimal.NullDecimal `json:"askVolume1"`

	// Depth holds levels 2..5 when the feed provides them.
	Depth []DepthLevel `json:"depth,omitempty"`

	OpenPrice     decimal.NullDecimal `json:"openPrice"`
	HighPrice     decimal.NullDecimal `json:"highPrice"`
	LowPrice      decimal.NullDecimal `json:"lowPrice"`
	PreClosePrice decimal.NullDecimal `json:"preClosePrice"`
	UpperLimit    decimal.NullDecimal `json:"upperLimit"`
	LowerLimit    decimal.NullDecimal `json:"lowerLimit"`
}

// Tick is a single validated trade/quote snapshot for one instrument.
//
// A Tick is built fresh from every TickEvent and never mutated afterwards;
// the same value is written under the instrument code and, when aliased,
// under the alias code.
type Tick struct {
	Code      string    `json:"code"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Timestamp time.Time `json:"datetime"` // Date and Time merged, sub-second precision

	LastPrice    decimal.Decimal `json:"lastPrice"`
	Volume       decimal.Decimal `json:"volume"`       // Cumulative session volume
	OpenInterest decimal.Decimal `json:"openInterest"` // Open interest at this tick

	BidPrice1  decimal.Decimal `json:"bidPrice1"`
	BidVolume1 decimal.Decimal `json:"bidVolume1"`
	AskPrice1  decimal.Decimal `json:"askPrice1"`
	AskVolume1 decimal.Decimal `json:"askVolume1"`
	Depth      []DepthLevel    `json:"depth,omitempty"`

	OpenPrice     decimal.Decimal `json:"openPrice"`
	HighPrice     decimal.Decimal `json:"highPrice"`
	LowPrice      decimal.Decimal `json:"lowPrice"`
	PreClosePrice decimal.Decimal `json:"preClosePrice"`
	UpperLimit    decimal.Decimal `json:"upperLimit"`
	LowerLimit    decimal.Decimal `json:"lowerLimit"`
}

// InstrumentCode implements Record.
func (t Tick) InstrumentCode() string { return t.Code }

// RecordTime implements Record.
func (t Tick) RecordTime() time.Time { return t.Timestamp }

// Bar is a one-minute OHLCV aggregate for one instrument.
//
// Fields:
//   - Date, Time: trading date and the bar's minute ("15:04")
//   - Start: the tick timestamp truncated to the minute; identifies the bar period
//   - Timestamp: timestamp of the first tick folded into the bar
//   - Open/High/Low/Close: prices observed within the minute
//   - Volume, OpenInterest: counters as chosen by the aggregator's VolumePolicy
type Bar struct {
	Code      string    `json:"code"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Start     time.Time `json:"start"`
	Timestamp time.Time `json:"datetime"`

	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Volume       decimal.Decimal `json:"volume"`
	OpenInterest decimal.Decimal `json:"openInterest"`
}

// InstrumentCode implements Record.
func (b Bar) InstrumentCode() string { return b.Code }

// RecordTime implements Record.
func (b Bar) RecordTime() time.Time { return b.Start }
