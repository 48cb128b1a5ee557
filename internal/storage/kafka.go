package storage

import (
	"context"
	"time"

	"datarecorder/internal/model"

	"github.com/segmentio/kafka-go"
)

// kafkaBatchTimeout bounds how long a synchronous write waits for a batch to fill.
const kafkaBatchTimeout = 10 * time.Millisecond

// messageWriter is the subset of *kafka.Writer used by KafkaStore.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore publishes every document to the topic named after its store, keyed
// by series so that one series stays ordered within a partition.
type KafkaStore struct {
	writer messageWriter
}

// NewKafkaStore creates a store writing to brokers.
func NewKafkaStore(brokers []string) *KafkaStore {
	return &KafkaStore{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: kafkaBatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}}
}

// Insert implements Store.
func (k *KafkaStore) Insert(ctx context.Context, store, series string, rec model.Record) error {
	msg, err := newMessage(store, series, rec)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func newMessage(store, series string, rec model.Record) (kafka.Message, error) {
	body, err := Encode(rec)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: store,
		Key:   []byte(series),
		Value: body,
		Time:  rec.RecordTime(),
	}, nil
}

// Close implements Store.
func (k *KafkaStore) Close() error {
	return k.writer.Close()
}
