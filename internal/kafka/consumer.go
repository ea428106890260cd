package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

// RegistrationOutcomeHandler receives terminal signals from the registration
// flow. Satisfied by the admission service; declared here to keep the
// consumer decoupled from the service package.
type RegistrationOutcomeHandler interface {
	MarkCompleted(ctx context.Context, ssID string) error
	MarkAbandoned(ctx context.Context, ssID string) error
}

// Consumer listens for registration outcome events and feeds them into the
// queue, so sessions that finish (or bail out) through the registration flow
// release their slot without an explicit API call.
type Consumer struct {
	consGr  sarama.ConsumerGroup
	handler RegistrationOutcomeHandler
	l       logger.Logger
	wg      sync.WaitGroup
}

func NewConsumer(consGr sarama.ConsumerGroup, handler RegistrationOutcomeHandler, l logger.Logger) *Consumer {
	return &Consumer{
		consGr:  consGr,
		handler: handler,
		l:       l,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	topics := []string{TopicRegistrationCompleted, TopicRegistrationAbandoned}

	c.wg.Go(func() {
		for {
			if err := c.consGr.Consume(ctx, topics, c); err != nil {
				c.l.Errorf(ctx, "kafka.Consumer.Start: %v", err)
			}

			if ctx.Err() != nil {
				c.l.Infof(ctx, "kafka.Consumer.Start: %v", ctx.Err())
				return
			}
		}
	})

	c.wg.Go(func() {
		for err := range c.consGr.Errors() {
			c.l.Errorf(ctx, "kafka.Consumer.Start: %v", err)
		}
	})

	c.l.Infof(ctx, "Consumer is consuming topics: %v", topics)
	return nil
}

func (c *Consumer) Close() error {
	if err := c.consGr.Close(); err != nil {
		return err
	}

	c.wg.Wait()
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := c.processMessage(sess.Context(), msg); err != nil {
			c.l.Errorf(sess.Context(), "kafka.Consumer.ConsumeClaim: %v", err)
			// Mark anyway: outcome handlers are idempotent and retrying a
			// poisoned message forever would stall the partition.
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case TopicRegistrationCompleted:
		var event RegistrationCompletedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		return c.handler.MarkCompleted(ctx, event.SessionID)
	case TopicRegistrationAbandoned:
		var event RegistrationAbandonedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		return c.handler.MarkAbandoned(ctx, event.SessionID)
	default:
		c.l.Warnf(ctx, "Unknown topic: %s", msg.Topic)
		return nil
	}
}
