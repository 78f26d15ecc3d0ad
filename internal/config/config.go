// Package config loads engine configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig holds top-level engine settings.
type EngineConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Confidence thresholds used when converting signals into orders.
	CriticalConfidence float64 `yaml:"critical_confidence" mapstructure:"critical_confidence"`
	HighConfidence     float64 `yaml:"high_confidence" mapstructure:"high_confidence"`
	// DefaultUserID attributes orders when a signal carries no user mapping.
	DefaultUserID string `yaml:"default_user_id" mapstructure:"default_user_id"`
	// StopLossDeadline is the urgency deadline applied to stop-loss work.
	StopLossDeadline time.Duration `yaml:"stop_loss_deadline" mapstructure:"stop_loss_deadline"`
}

// RedisConfig holds connection settings for the signal stream and the
// transient notification channel.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`

	SignalStream  string `yaml:"signal_stream" mapstructure:"signal_stream"`
	ConsumerGroup string `yaml:"consumer_group" mapstructure:"consumer_group"`

	NotificationChannel string        `yaml:"notification_channel" mapstructure:"notification_channel"`
	TransientTTL        time.Duration `yaml:"transient_ttl" mapstructure:"transient_ttl"`
}

// KafkaConfig holds settings for the notification egress writer.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// DatabaseConfig holds the durable store connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// QueueConfig tunes the queue manager.
type QueueConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" mapstructure:"visibility_timeout"`
	RetryBackoffBase  time.Duration `yaml:"retry_backoff_base" mapstructure:"retry_backoff_base"`
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max" mapstructure:"retry_backoff_max"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval" mapstructure:"watchdog_interval"`
	RebalanceInterval time.Duration `yaml:"rebalance_interval" mapstructure:"rebalance_interval"`
	// PriorityDrainThreshold is the priority-lane depth beyond which the
	// standard lane is starved until the backlog drains.
	PriorityDrainThreshold int    `yaml:"priority_drain_threshold" mapstructure:"priority_drain_threshold"`
	DeadLetterPath         string `yaml:"dead_letter_path" mapstructure:"dead_letter_path"`
}

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Count       int           `yaml:"count" mapstructure:"count"`
	IdleBackoff time.Duration `yaml:"idle_backoff" mapstructure:"idle_backoff"`
}

// RiskConfig holds the risk gate limits.
type RiskConfig struct {
	MaxPositionSize  string `yaml:"max_position_size" mapstructure:"max_position_size"`
	MaxDailyLoss     string `yaml:"max_daily_loss" mapstructure:"max_daily_loss"`
	MaxOrdersPerMin  int    `yaml:"max_orders_per_min" mapstructure:"max_orders_per_min"`
	MaxTotalExposure string `yaml:"max_total_exposure" mapstructure:"max_total_exposure"`
}

// NotificationConfig tunes the notification router and fan-out stage.
type NotificationConfig struct {
	BufferSize      int           `yaml:"buffer_size" mapstructure:"buffer_size"`
	DeliveryRetries int           `yaml:"delivery_retries" mapstructure:"delivery_retries"`
	DeliveryBackoff time.Duration `yaml:"delivery_backoff" mapstructure:"delivery_backoff"`
	WebhookURL      string        `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// HealthConfig tunes the heartbeat monitor.
type HealthConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	DegradedThreshold time.Duration `yaml:"degraded_threshold" mapstructure:"degraded_threshold"`
	DeadThreshold     time.Duration `yaml:"dead_threshold" mapstructure:"dead_threshold"`
	RestartBackoff    time.Duration `yaml:"restart_backoff" mapstructure:"restart_backoff"`
}

// BrokerConfig selects and tunes the broker capability.
type BrokerConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider"`
	SubmitTimeout time.Duration `yaml:"submit_timeout" mapstructure:"submit_timeout"`
	// SymbolTokens maps exchange symbols to provider instrument tokens.
	SymbolTokens map[string]string `yaml:"symbol_tokens" mapstructure:"symbol_tokens"`
}

// ServerConfig holds the operational HTTP surface settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Config is the full engine configuration.
type Config struct {
	Engine       EngineConfig       `yaml:"engine" mapstructure:"engine"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka" mapstructure:"kafka"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Queue        QueueConfig        `yaml:"queue" mapstructure:"queue"`
	Worker       WorkerConfig       `yaml:"worker" mapstructure:"worker"`
	Risk         RiskConfig         `yaml:"risk" mapstructure:"risk"`
	Notification NotificationConfig `yaml:"notification" mapstructure:"notification"`
	Health       HealthConfig       `yaml:"health" mapstructure:"health"`
	Broker       BrokerConfig       `yaml:"broker" mapstructure:"broker"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
}

// Load reads configuration from the given file, applying defaults and
// ENGINE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.log_level", "info")
	v.SetDefault("engine.critical_confidence", 0.95)
	v.SetDefault("engine.high_confidence", 0.8)
	v.SetDefault("engine.default_user_id", "system")
	v.SetDefault("engine.stop_loss_deadline", 2*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.signal_stream", "strategy_signals")
	v.SetDefault("redis.consumer_group", "dispatch-engine")
	v.SetDefault("redis.notification_channel", "notifications.events")
	v.SetDefault("redis.transient_ttl", 15*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "notifications.events")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.visibility_timeout", 30*time.Second)
	v.SetDefault("queue.retry_backoff_base", 500*time.Millisecond)
	v.SetDefault("queue.retry_backoff_max", 30*time.Second)
	v.SetDefault("queue.watchdog_interval", time.Second)
	v.SetDefault("queue.rebalance_interval", 5*time.Second)
	v.SetDefault("queue.priority_drain_threshold", 100)
	v.SetDefault("queue.dead_letter_path", "data/deadletter")

	v.SetDefault("worker.count", 8)
	v.SetDefault("worker.idle_backoff", 50*time.Millisecond)

	v.SetDefault("risk.max_position_size", "10000")
	v.SetDefault("risk.max_daily_loss", "5000")
	v.SetDefault("risk.max_orders_per_min", 60)
	v.SetDefault("risk.max_total_exposure", "100000")

	v.SetDefault("notification.buffer_size", 1024)
	v.SetDefault("notification.delivery_retries", 3)
	v.SetDefault("notification.delivery_backoff", time.Second)
	v.SetDefault("notification.webhook_url", "")

	v.SetDefault("health.sweep_interval", 5*time.Second)
	v.SetDefault("health.degraded_threshold", 30*time.Second)
	v.SetDefault("health.dead_threshold", 2*time.Minute)
	v.SetDefault("health.restart_backoff", 5*time.Second)

	v.SetDefault("broker.provider", "paper")
	v.SetDefault("broker.submit_timeout", 10*time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be >= 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1, got %d", c.Worker.Count)
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("queue.visibility_timeout must be positive")
	}
	if c.Health.DeadThreshold <= c.Health.DegradedThreshold {
		return fmt.Errorf("health.dead_threshold must exceed health.degraded_threshold")
	}
	return nil
}
