// Package kafka publishes crawl events to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// keyed payloads choose their own partition key.
type keyed interface {
	Key() string
}

// Publisher wraps a Kafka writer. The topic is chosen per message.
type Publisher struct {
	writer messageWriter
}

// New creates a Publisher for the given brokers.
func New(brokers ...string) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewWithWriter builds a Publisher using a custom writer (tests).
func NewWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish marshals payload to JSON and writes it to topic. The returned id is
// the message key.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("kafka topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := kafkago.Message{
		Topic: topic,
		Value: data,
		Time:  time.Now().UTC(),
	}
	var key string
	if k, ok := payload.(keyed); ok {
		key = k.Key()
		msg.Key = []byte(key)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return key, nil
}
