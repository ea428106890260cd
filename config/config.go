package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	Redis   RedisConfig
	Queue   QueueConfig
	Sweep   SweepConfig
	Kafka   KafkaConfig
	Metrics MetricsConfig
	Log     LogConfig
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type QueueConfig struct {
	// EntryTTL bounds how long a finished entry lingers in the store. It must
	// comfortably exceed every configured session timeout.
	EntryTTL time.Duration
}

type SweepConfig struct {
	Interval        time.Duration
	ShutdownTimeout time.Duration
}

type KafkaConfig struct {
	Brokers               []string
	Version               string
	ProducerRetryMax      int
	ProducerRequiredAcks  int
	Enabled               bool
	ConsumerGroupID       string
	ConsumerInitialOffset string
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Queue: QueueConfig{
			EntryTTL: getEnvAsDuration("QUEUE_ENTRY_TTL", 24*time.Hour),
		},
		Sweep: SweepConfig{
			Interval:        getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			ShutdownTimeout: getEnvAsDuration("SWEEP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:               getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Version:               getEnv("KAFKA_VERSION", "2.8.0"),
			ProducerRetryMax:      getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks:  getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:               getEnvAsBool("KAFKA_ENABLED", false),
			ConsumerGroupID:       getEnv("KAFKA_CONSUMER_GROUP_ID", "regflow-gatekeeper"),
			ConsumerInitialOffset: getEnv("KAFKA_CONSUMER_INITIAL_OFFSET", "newest"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Addr:    getEnv("METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("invalid sweep interval: %v", c.Sweep.Interval)
	}

	if c.Queue.EntryTTL <= 0 {
		return fmt.Errorf("invalid queue entry TTL: %v", c.Queue.EntryTTL)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
