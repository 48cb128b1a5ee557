package recorder

import (
	"context"
	"errors"
	"fmt"

	"datarecorder/internal/alias"
	"datarecorder/internal/model"
)

// TickRecorder writes every tick it is given to the tick store, under the
// instrument code and, when aliased, again under the alias code.
type TickRecorder struct {
	sink    Sink
	aliases *alias.Table
	store   string
}

// NewTickRecorder creates a TickRecorder writing into store.
func NewTickRecorder(sink Sink, aliases *alias.Table, store string) *TickRecorder {
	return &TickRecorder{sink: sink, aliases: aliases, store: store}
}

// Record writes tick. Both writes are always attempted; their failures are
// joined into the returned error.
func (r *TickRecorder) Record(ctx context.Context, tick model.Tick) error {
	var errs []error

	primaryErr := r.sink.WriteRecord(ctx, r.store, tick.Code, tick)
	if primaryErr != nil {
		errs = append(errs, primaryErr)
	}

	if code, ok := r.aliases.Resolve(tick.Code); ok {
		if err := r.sink.WriteRecord(ctx, r.store, code, tick); err != nil {
			errs = append(errs, err)
		}
	}

	if primaryErr == nil {
		r.sink.WriteLog(fmt.Sprintf("recorded tick %s, time: %s, last: %s, bid: %s, ask: %s",
			tick.Code, tick.Time, tick.LastPrice, tick.BidPrice1, tick.AskPrice1))
	}

	return errors.Join(errs...)
}
