package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// KafkaWriter abstracts the output stream for the firehose.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the wire shape of one firehose record.
type envelope struct {
	Type   models.EventType `json:"type"`
	Symbol string           `json:"symbol"`
	Data   interface{}      `json:"data"`
}

// Firehose mirrors every normalized event onto a Kafka topic, keyed by
// symbol so per-symbol ordering survives partitioning. A nil *Firehose is
// a valid disabled publisher.
type Firehose struct {
	writer KafkaWriter
	logger *zap.Logger
}

func NewFirehose(writer KafkaWriter, logger *zap.Logger) *Firehose {
	return &Firehose{writer: writer, logger: logger}
}

// NewKafkaWriter builds the tuned writer used in production: batched,
// async, least-bytes balanced.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

// Publish mirrors one event. Failures are logged, never surfaced: the
// firehose is an auxiliary output and must not stall ingestion.
func (f *Firehose) Publish(ctx context.Context, typ models.EventType, symbol string, event interface{}) {
	if f == nil {
		return
	}

	payload, err := json.Marshal(envelope{Type: typ, Symbol: symbol, Data: event})
	if err != nil {
		f.logger.Error("firehose marshal failed", zap.Error(err))
		return
	}

	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: payload,
	})
	if err != nil {
		f.logger.Warn("firehose write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Close flushes buffered messages.
func (f *Firehose) Close() error {
	if f == nil {
		return nil
	}
	return f.writer.Close()
}
