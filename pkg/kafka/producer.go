package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

type ProducerConfig struct {
	Brokers      []string
	Version      string
	RetryMax     int
	RequiredAcks int
}

func NewProducer(cfg ProducerConfig, l logger.Logger) (sarama.SyncProducer, error) {
	version, err := parseVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = version
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Return.Successes = true

	prod, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	l.Infof(context.Background(), "Kafka producer connected: brokers=%v version=%s", cfg.Brokers, version)

	return prod, nil
}

// parseVersion maps the configured broker version onto sarama's protocol
// version, falling back to sarama's default when unset.
func parseVersion(s string) (sarama.KafkaVersion, error) {
	if s == "" {
		return sarama.DefaultVersion, nil
	}

	version, err := sarama.ParseKafkaVersion(s)
	if err != nil {
		return sarama.KafkaVersion{}, fmt.Errorf("invalid kafka version %q: %w", s, err)
	}

	return version, nil
}
