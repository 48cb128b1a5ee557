package config

import (
	"fmt"
	"strings"

	"datarecorder/internal/utils"
)

const (
	// DefaultTickStore is the store that receives every recorded tick.
	DefaultTickStore = "ticks"

	// DefaultMinuteStore is the store that receives every completed one-minute bar.
	DefaultMinuteStore = "bars_1m"
)

// Volume policies for bars. See recorder.VolumePolicy.
const (
	VolumePolicyOpen   = "open"
	VolumePolicyLatest = "latest"
)

// RecordingSettings mirrors the recording settings document:
//
//	{
//	  "working": true,
//	  "tick": [["IF1604", "CTP"]],
//	  "bar": [["IF1604", "CTP"]],
//	  "active": [{"alias": "IF0000", "contract": "IF1604"}]
//	}
//
// Subscriptions are (instrumentCode, feedIdentifier) pairs. Active entries are
// keyed by alias and valued by the concrete contract, the inverse of the lookup
// direction used while recording.
type RecordingSettings struct {
	Working      bool         `mapstructure:"working"`
	Tick         [][]string   `mapstructure:"tick"`
	Bar          [][]string   `mapstructure:"bar"`
	Active       []AliasEntry `mapstructure:"active"`
	VolumePolicy string       `mapstructure:"volume_policy"`
}

// AliasEntry maps a logical alias (e.g. a rolling front-month code) to the
// concrete contract currently representing it.
type AliasEntry struct {
	Alias    string `mapstructure:"alias"`
	Contract string `mapstructure:"contract"`
}

// Subscription is one instrument to subscribe on one feed.
type Subscription struct {
	Code string
	Feed string
}

// Recording is the resolved, validated form of RecordingSettings.
type Recording struct {
	Working      bool
	Tick         []Subscription
	Bar          []Subscription
	Active       []AliasEntry
	VolumePolicy string
}

// Resolve validates the settings and converts the subscription pairs.
// A disabled document resolves without further validation.
func (s RecordingSettings) Resolve() (Recording, error) {
	if !s.Working {
		return Recording{}, nil
	}

	tick, err := resolvePairs("tick", s.Tick)
	if err != nil {
		return Recording{}, err
	}
	bar, err := resolvePairs("bar", s.Bar)
	if err != nil {
		return Recording{}, err
	}

	active := make([]AliasEntry, 0, len(s.Active))
	for i, e := range s.Active {
		e.Alias = strings.TrimSpace(e.Alias)
		e.Contract = strings.TrimSpace(e.Contract)
		if e.Alias == "" || e.Contract == "" {
			return Recording{}, fmt.Errorf("%w: active[%d]: alias and contract are required", ErrInvalidSettings, i)
		}
		active = append(active, e)
	}

	policy := strings.ToLower(strings.TrimSpace(s.VolumePolicy))
	switch policy {
	case "":
		policy = VolumePolicyOpen
	case VolumePolicyOpen, VolumePolicyLatest:
	default:
		return Recording{}, fmt.Errorf("%w: unknown volume_policy %q", ErrInvalidSettings, s.VolumePolicy)
	}

	return Recording{
		Working:      true,
		Tick:         tick,
		Bar:          bar,
		Active:       active,
		VolumePolicy: policy,
	}, nil
}

func resolvePairs(section string, pairs [][]string) ([]Subscription, error) {
	subs := make([]Subscription, 0, len(pairs))
	codes := make([]string, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: %s[%d]: expected [instrumentCode, feed], got %d values", ErrInvalidSettings, section, i, len(p))
		}
		sub := Subscription{Code: strings.TrimSpace(p[0]), Feed: strings.TrimSpace(p[1])}
		if sub.Feed == "" {
			return nil, fmt.Errorf("%w: %s[%d]: feed is empty", ErrInvalidSettings, section, i)
		}
		subs = append(subs, sub)
		codes = append(codes, sub.Code)
	}
	if len(codes) > 0 {
		if err := utils.ValidateCodes(codes); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, section, err)
		}
	}
	return subs, nil
}
