package repository

import (
	"context"

	"BarLake/internal/domain/models"
	domrepo "BarLake/internal/domain/repository"
)

// EventSink is the subset of pkg/kafka.Producer used for domain events.
type EventSink interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NopPublisher{}
)

// KafkaEventPublisher writes ingest and repair events keyed by symbol,
// so events for one symbol keep their order within a partition.
type KafkaEventPublisher struct {
	sink  EventSink
	topic string
}

func NewKafkaEventPublisher(sink EventSink, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{sink: sink, topic: topic}
}

func (p *KafkaEventPublisher) PublishIngested(ctx context.Context, ev models.IngestedEvent) error {
	ev.Type = models.EventBarsIngested
	return p.sink.Publish(ctx, p.topic, []byte(ev.Symbol), ev)
}

func (p *KafkaEventPublisher) PublishRepaired(ctx context.Context, ev models.RepairedEvent) error {
	ev.Type = models.EventBarsRepaired
	return p.sink.Publish(ctx, p.topic, []byte(ev.Symbol), ev)
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishIngested(context.Context, models.IngestedEvent) error { return nil }
func (NopPublisher) PublishRepaired(context.Context, models.RepairedEvent) error { return nil }
