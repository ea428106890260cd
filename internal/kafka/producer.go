package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

// Producer publishes queue lifecycle events. Implementations must be safe for
// concurrent use; callers treat publish failures as log-and-continue.
type Producer interface {
	PublishSessionQueued(ctx context.Context, event SessionQueuedEvent) error
	PublishSessionAdmitted(ctx context.Context, event SessionAdmittedEvent) error
	PublishSessionExpired(ctx context.Context, event SessionExpiredEvent) error
	PublishSessionCompleted(ctx context.Context, event SessionCompletedEvent) error
	PublishSessionAbandoned(ctx context.Context, event SessionAbandonedEvent) error
	Close() error
}

type kafkaProducer struct {
	prod sarama.SyncProducer
	l    logger.Logger
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &kafkaProducer{
		prod: prod,
		l:    l,
	}
}

func (p *kafkaProducer) PublishSessionQueued(ctx context.Context, event SessionQueuedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicSessionQueued, event.EventID, event)
}

func (p *kafkaProducer) PublishSessionAdmitted(ctx context.Context, event SessionAdmittedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicSessionAdmitted, event.EventID, event)
}

func (p *kafkaProducer) PublishSessionExpired(ctx context.Context, event SessionExpiredEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicSessionExpired, event.EventID, event)
}

func (p *kafkaProducer) PublishSessionCompleted(ctx context.Context, event SessionCompletedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicSessionCompleted, event.EventID, event)
}

func (p *kafkaProducer) PublishSessionAbandoned(ctx context.Context, event SessionAbandonedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicSessionAbandoned, event.EventID, event)
}

func (p *kafkaProducer) publish(ctx context.Context, topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		// Partition by event id so per-event ordering is preserved.
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.prod.SendMessage(msg)
	if err != nil {
		p.l.Errorf(ctx, "kafka.kafkaProducer.publish: %v", err)
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.l.Debugf(ctx, "Kafka message sent: topic=%s partition=%d offset=%d key=%s",
		topic, partition, offset, key)

	return nil
}

func (p *kafkaProducer) Close() error {
	return p.prod.Close()
}
