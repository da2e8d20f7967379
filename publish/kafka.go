package publish

import (
	"context"
	"fmt"

	"github.com/gr-butler/weatherlog/record"
	"github.com/segmentio/kafka-go"
	logger "github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per sample, keyed by station. The writer
// is asynchronous; delivery failures come back through the completion hook.
type KafkaPublisher struct {
	writer messageWriter
	key    []byte
}

func NewKafkaPublisher(brokers []string, topic, stationID string) *KafkaPublisher {
	logger.Infof("Kafka producer [%v] topic [%v]", brokers, topic)
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion:   logDelivery,
		},
		key: []byte(stationID),
	}
}

func logDelivery(messages []kafka.Message, err error) {
	if err != nil {
		logger.Warnf("%v: kafka delivery of [%d] samples [%v]", ErrPublish, len(messages), err)
		Prom_publishErrors.WithLabelValues("kafka").Add(float64(len(messages)))
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, s record.RawSample) error {
	payload, err := record.EncodeEvent(s)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPublish, err)
	}
	msg := kafka.Message{
		Key:   k.key,
		Value: payload,
		Time:  s.Time,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka: %v", ErrPublish, err)
	}
	return nil
}

// Close flushes anything still queued.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
