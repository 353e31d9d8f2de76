// Package notify delivers content events to Kafka.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// DefaultTopic receives content events unless configured otherwise
const DefaultTopic = "content_notification"

// Header keys of every message
const (
	HeaderEvent  = "event"
	HeaderLogger = "logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka is a core.Notifier publishing one message per event. Messages are keyed by
// type and record id so events of one record stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka returns a notifier writing to topic on the comma separated brokers
func NewKafka(brokers, topic string) *Kafka {
	if topic == "" {
		topic = DefaultTopic
	}
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(addrs...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		topic: topic,
	}
}

// Topic returns the topic events are written to
func (k *Kafka) Topic() string {
	return k.topic
}

// Notify implements core.Notifier
func (k *Kafka) Notify(ctx context.Context, event core.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("cannot marshal event %s: %w", event.Name, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Type + ":" + event.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEvent, Value: []byte(event.Name)},
			{Key: HeaderLogger, Value: logger.SerializeLoggerContext(ctx)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("cannot write event %s to %s: %w", event.Name, k.topic, err)
	}
	logger.FromContext(ctx).WithField("type", event.Type).Debugf("sent %s for %s", event.Name, event.ID)
	return nil
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
