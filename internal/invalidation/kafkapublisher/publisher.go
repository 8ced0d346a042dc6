// Package kafkapublisher announces dataset changes on the invalidation topic.
package kafkapublisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/gevika/map-metagenome/internal/invalidation"
)

type Publisher struct {
	topic string
	prod  sarama.SyncProducer
}

func New(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkapublisher: create sync producer: %w", err)
	}
	return NewWithProducer(prod, topic), nil
}

func NewWithProducer(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{topic: topic, prod: prod}
}

// Publish sends ev keyed by dataset, so every event of one dataset lands on
// the same partition and keeps its order.
func (p *Publisher) Publish(ctx context.Context, ev invalidation.Event) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := ev.Validate(); err != nil {
		return 0, 0, fmt.Errorf("kafkapublisher: invalid event: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("kafkapublisher: marshal: %w", err)
	}
	part, off, err := p.prod.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Dataset),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("kafkapublisher: send to %s: %w", p.topic, err)
	}
	return part, off, nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafkapublisher: close producer: %w", err)
	}
	return nil
}
