// Package storage implements the document stores ticks and bars are written to.
//
// Every backend follows the same model: a named store (a collection of series)
// holds one series per instrument or alias code, and each write appends the full
// JSON document of a record. Stores never update or deduplicate records.
package storage

import (
	"context"
	"errors"
	"fmt"

	"datarecorder/internal/config"
	"datarecorder/internal/model"

	json "github.com/goccy/go-json"
)

// ErrUnknownDriver indicates a storage driver name with no implementation.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store inserts records into named stores partitioned by series identity.
type Store interface {
	Insert(ctx context.Context, store, series string, rec model.Record) error
	Close() error
}

// Encode returns the document body stored for rec.
func Encode(rec model.Record) ([]byte, error) {
	return json.Marshal(rec)
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", "memory":
		store = NewMemoryStore()
	case "sqlite":
		store, err = OpenSQLite(cfg.DSN)
	case "postgres":
		store, err = OpenPostgres(cfg.DSN)
	case "redis":
		store, err = OpenRedis(ctx, cfg.DSN)
	case "kafka":
		store = NewKafkaStore(cfg.Brokers)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
