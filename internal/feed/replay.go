package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"datarecorder/internal/model"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// maxReplayLine bounds one captured tick line.
const maxReplayLine = 1 << 20

// ReplayConnector streams ticks from a JSON-lines capture, one TickEvent per
// line, in file order. Only ticks for the subscribed codes are delivered; blank
// lines are skipped and undecodable lines are logged and skipped.
type ReplayConnector struct {
	open   func() (io.ReadCloser, error)
	source string
}

// NewReplayConnector creates a connector reading the capture at path. The file
// is opened on each subscription.
func NewReplayConnector(path string) *ReplayConnector {
	return &ReplayConnector{
		open:   func() (io.ReadCloser, error) { return os.Open(path) },
		source: path,
	}
}

// NewReaderConnector creates a connector reading a single capture from r.
func NewReaderConnector(r io.Reader) *ReplayConnector {
	return &ReplayConnector{
		open:   func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		source: "reader",
	}
}

// SubscribeToTicks implements Connector.
func (rc *ReplayConnector) SubscribeToTicks(ctx context.Context, codes []string) (<-chan model.TickEvent, error) {
	f, err := rc.open()
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", rc.source, err)
	}

	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[strings.TrimSpace(c)] = struct{}{}
	}

	out := make(chan model.TickEvent, 1024)
	go func() {
		defer close(out)
		defer f.Close()

		logger := log.With().Str("component", "replay").Str("source", rc.source).Logger()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)

		line, sent := 0, 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var ev model.TickEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				logger.Warn().Err(err).Int("line", line).Msg("skipping undecodable line")
				continue
			}
			// Codes are matched the way the engine normalises them
			if _, ok := wanted[strings.TrimSpace(ev.Code)]; !ok {
				continue
			}

			select {
			case out <- ev:
				sent++
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error().Err(err).Int("line", line).Msg("capture read failed")
		}
		logger.Info().Int("lines", line).Int("ticks", sent).Msg("capture exhausted")
	}()

	return out, nil
}
