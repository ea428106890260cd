package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Version string
	// InitialOffset picks where a new consumer group starts: "oldest" replays
	// the topic, anything else tails from the newest message.
	InitialOffset string
}

func NewConsumer(cfg ConsumerConfig, l logger.Logger) (sarama.ConsumerGroup, error) {
	version, err := parseVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = version
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaCfg.Consumer.Offsets.Initial = initialOffset(cfg.InitialOffset)
	saramaCfg.Consumer.Return.Errors = true

	consGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	l.Infof(context.Background(), "Kafka consumer connected: brokers=%v group=%s", cfg.Brokers, cfg.GroupID)

	return consGroup, nil
}

func initialOffset(s string) int64 {
	if s == "oldest" {
		return sarama.OffsetOldest
	}
	return sarama.OffsetNewest
}
