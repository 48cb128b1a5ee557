package storage

import (
	"context"
	"sort"
	"sync"

	"datarecorder/internal/model"
	"datarecorder/internal/utils"
)

// MemoryStore keeps encoded documents in process memory. It backs tests and
// dry runs of the recorder.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][][]byte)}
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, store, series string, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := Encode(rec)
	if err != nil {
		return err
	}

	key := utils.SeriesKey(store, series)
	m.mu.Lock()
	m.docs[key] = append(m.docs[key], body)
	m.mu.Unlock()
	return nil
}

// Documents returns a copy of the documents written to one series, in insert order.
func (m *MemoryStore) Documents(store, series string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.docs[utils.SeriesKey(store, series)]
	out := make([][]byte, len(docs))
	copy(out, docs)
	return out
}

// Series lists the series keys ("store:series") holding at least one document.
func (m *MemoryStore) Series() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the total number of documents across all series.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, docs := range m.docs {
		n += len(docs)
	}
	return n
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
