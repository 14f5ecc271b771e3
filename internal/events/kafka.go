package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ticket events to a topic, keyed by ticket id.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, ev TicketEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ticket event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.TicketID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "category", Value: []byte(ev.Category)},
			{Key: "urgency", Value: []byte(ev.Urgency)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	log.Printf("📨 Sent ticket event to Kafka: %s", ev.TicketID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
