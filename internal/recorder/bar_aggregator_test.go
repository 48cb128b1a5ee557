package recorder

import (
	"errors"
	"testing"
	"time"

	"datarecorder/internal/config"
	"datarecorder/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTick creates a tick at 2016-04-01 hh:mm:ss.ms UTC.
func createTestTick(code string, hh, mm, ss, ms int, price string, volume int64) model.Tick {
	ts := time.Date(2016, 4, 1, hh, mm, ss, ms*int(time.Millisecond), time.UTC)
	return model.Tick{
		Code:         code,
		Date:         ts.Format(model.DateLayout),
		Time:         ts.Format("15:04:05.000"),
		Timestamp:    ts,
		LastPrice:    decimal.RequireFromString(price),
		Volume:       decimal.NewFromInt(volume),
		OpenInterest: decimal.NewFromInt(volume * 10),
	}
}

// Test_BarAggregator_Fold tests rollover emission for a tick sequence.
func Test_BarAggregator_Fold(t *testing.T) {
	tests := []struct {
		name          string
		ticks         []model.Tick
		expectedBars  []string // "HH:MM O H L C" of each completed bar
		expectedOpen  string
		expectedStart string
		description   string
	}{
		{
			name:          "Single tick",
			ticks:         []model.Tick{createTestTick("X", 9, 30, 0, 0, "100", 1)},
			expectedOpen:  "100",
			expectedStart: "09:30",
			description:   "The first tick only opens a bar",
		},
		{
			name: "Same minute",
			ticks: []model.Tick{
				createTestTick("X", 9, 30, 0, 0, "100", 1),
				createTestTick("X", 9, 30, 59, 999, "105", 2),
			},
			expectedOpen:  "100",
			expectedStart: "09:30",
			description:   "Ticks within one minute never emit",
		},
		{
			name: "Next minute",
			ticks: []model.Tick{
				createTestTick("X", 9, 30, 0, 100, "100", 1),
				createTestTick("X", 9, 30, 30, 500, "102", 2),
				createTestTick("X", 9, 31, 0, 0, "101", 3),
			},
			expectedBars:  []string{"09:30 100 102 100 102"},
			expectedOpen:  "101",
			expectedStart: "09:31",
			description:   "The first tick of a later minute completes the held bar",
		},
		{
			name: "Gap of several minutes",
			ticks: []model.Tick{
				createTestTick("X", 9, 30, 10, 0, "100", 1),
				createTestTick("X", 9, 45, 10, 0, "90", 2),
			},
			expectedBars:  []string{"09:30 100 100 100 100"},
			expectedOpen:  "90",
			expectedStart: "09:45",
			description:   "Empty minutes produce no bars",
		},
		{
			name: "Same minute of a later hour",
			ticks: []model.Tick{
				createTestTick("X", 9, 30, 10, 0, "100", 1),
				createTestTick("X", 10, 30, 10, 0, "110", 2),
			},
			expectedBars:  []string{"09:30 100 100 100 100"},
			expectedOpen:  "110",
			expectedStart: "10:30",
			description:   "Bars are keyed by the full minute, not minute-of-hour",
		},
		{
			name: "Every minute",
			ticks: []model.Tick{
				createTestTick("X", 9, 30, 0, 0, "1", 1),
				createTestTick("X", 9, 31, 0, 0, "2", 1),
				createTestTick("X", 9, 32, 0, 0, "3", 1),
				createTestTick("X", 9, 33, 0, 0, "4", 1),
			},
			expectedBars:  []string{"09:30 1 1 1 1", "09:31 2 2 2 2", "09:32 3 3 3 3"},
			expectedOpen:  "4",
			expectedStart: "09:33",
			description:   "Exactly one bar per completed minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewBarAggregator([]string{"X"}, VolumeAtOpen)

			var got []string
			for _, tick := range tt.ticks {
				if bar, ok := agg.Fold(tick); ok {
					got = append(got, bar.Time+" "+bar.Open.String()+" "+bar.High.String()+" "+
						bar.Low.String()+" "+bar.Close.String())
				}
			}
			assert.Equal(t, tt.expectedBars, got, tt.description)

			current, ok := agg.Current("X")
			require.True(t, ok)
			assert.Equal(t, tt.expectedOpen, current.Open.String())
			assert.Equal(t, tt.expectedStart, current.Time)
		})
	}
}

// Test_BarAggregator_Untracked tests that unknown codes never open a slot.
func Test_BarAggregator_Untracked(t *testing.T) {
	agg := NewBarAggregator([]string{"X"}, VolumeAtOpen)

	assert.True(t, agg.Tracks("X"))
	assert.False(t, agg.Tracks("Y"))

	_, ok := agg.Fold(createTestTick("Y", 9, 30, 0, 0, "1", 1))
	assert.False(t, ok)
	_, ok = agg.Current("Y")
	assert.False(t, ok)
	assert.Empty(t, agg.Drain())
}

// Test_BarAggregator_Independence tests that instruments roll over independently.
func Test_BarAggregator_Independence(t *testing.T) {
	agg := NewBarAggregator([]string{"X", "Y"}, VolumeAtOpen)

	agg.Fold(createTestTick("X", 9, 30, 0, 0, "100", 1))
	agg.Fold(createTestTick("Y", 9, 30, 5, 0, "50", 1))

	bar, ok := agg.Fold(createTestTick("X", 9, 31, 0, 0, "101", 1))
	require.True(t, ok)
	assert.Equal(t, "X", bar.Code)

	y, ok := agg.Current("Y")
	require.True(t, ok)
	assert.Equal(t, "09:30", y.Time, "Y's bar is not completed by X's tick")
}

// Test_BarAggregator_Volume tests both volume policies.
func Test_BarAggregator_Volume(t *testing.T) {
	ticks := []model.Tick{
		createTestTick("X", 9, 30, 0, 0, "100", 10),
		createTestTick("X", 9, 30, 20, 0, "101", 25),
		createTestTick("X", 9, 30, 40, 0, "99", 40),
	}

	open := NewBarAggregator([]string{"X"}, VolumeAtOpen)
	latest := NewBarAggregator([]string{"X"}, VolumeAtLatest)
	for _, tick := range ticks {
		open.Fold(tick)
		latest.Fold(tick)
	}

	bar, _ := open.Current("X")
	assert.Equal(t, "10", bar.Volume.String())
	assert.Equal(t, "100", bar.OpenInterest.String())

	bar, _ = latest.Current("X")
	assert.Equal(t, "40", bar.Volume.String())
	assert.Equal(t, "400", bar.OpenInterest.String())
}

// Test_BarAggregator_Drain tests draining and the reset to Empty.
func Test_BarAggregator_Drain(t *testing.T) {
	agg := NewBarAggregator([]string{"Y", "X", "Z"}, VolumeAtOpen)
	agg.Fold(createTestTick("Y", 9, 30, 0, 0, "50", 1))
	agg.Fold(createTestTick("X", 9, 30, 0, 0, "100", 1))

	bars := agg.Drain()
	require.Len(t, bars, 2)
	assert.Equal(t, "X", bars[0].Code)
	assert.Equal(t, "Y", bars[1].Code)

	assert.Empty(t, agg.Drain(), "Drained slots hold nothing")

	_, ok := agg.Fold(createTestTick("X", 9, 30, 30, 0, "103", 1))
	assert.False(t, ok, "A tick after a drain opens a fresh bar")
	bar, _ := agg.Current("X")
	assert.Equal(t, "103", bar.Open.String())
}

func Test_ParseVolumePolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected VolumePolicy
		wantErr  bool
	}{
		{input: "", expected: VolumeAtOpen},
		{input: config.VolumePolicyOpen, expected: VolumeAtOpen},
		{input: " Latest ", expected: VolumeAtLatest},
		{input: "sum", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVolumePolicy(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, config.ErrInvalidSettings))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
