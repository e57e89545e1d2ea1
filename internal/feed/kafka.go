package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaArchive mirrors every feed event to a topic for downstream consumers
// (analytics, replay). Live fan-out never depends on it.
type KafkaArchive struct {
	writer *kafka.Writer
}

func NewKafkaArchive(brokers []string, topic string) *KafkaArchive {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaArchive{writer: w}
}

func (a *KafkaArchive) Write(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return a.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.RecordID()), Value: b})
}

func (a *KafkaArchive) Close() error {
	if a.writer == nil {
		return nil
	}
	return a.writer.Close()
}
