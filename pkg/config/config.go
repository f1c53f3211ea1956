package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Upstream struct {
		URL             string        `yaml:"url"`
		Pair            string        `yaml:"pair"`
		Timeout         time.Duration `yaml:"timeout"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		BackoffInterval time.Duration `yaml:"backoff_interval"`
	} `yaml:"upstream"`
	TickCache struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"tick_cache"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		TicksTopic      string   `yaml:"ticks_topic"`
		ChangeFeedTopic string   `yaml:"change_feed_topic"`
		Producer        struct {
			RequiredAcks int           `yaml:"required_acks"`
			Compression  string        `yaml:"compression"`
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string `yaml:"group_id"`
			Workers    int    `yaml:"workers"`
			BufferSize int    `yaml:"buffer_size"`
			MinBytes   int    `yaml:"min_bytes"`
			MaxBytes   int    `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	ChartCache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"chart_cache"`
	Relay struct {
		SnapshotRows int           `yaml:"snapshot_rows"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		PingInterval time.Duration `yaml:"ping_interval"`
	} `yaml:"relay"`
	RetryQueue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"retry_queue"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("UPSTREAM_URL"); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv("PAIR"); v != "" {
		c.Upstream.Pair = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Upstream.PollInterval <= 0 {
		c.Upstream.PollInterval = 20 * time.Second
	}
	if c.Upstream.BackoffInterval <= 0 {
		c.Upstream.BackoffInterval = 60 * time.Second
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 10 * time.Second
	}
	if c.TickCache.Capacity <= 0 {
		c.TickCache.Capacity = 10000
	}
	if c.Relay.SnapshotRows <= 0 {
		c.Relay.SnapshotRows = 25
	}
	if c.Relay.WriteTimeout <= 0 {
		c.Relay.WriteTimeout = 10 * time.Second
	}
	if c.Relay.PingInterval <= 0 {
		c.Relay.PingInterval = 30 * time.Second
	}
	if c.ChartCache.TTL <= 0 {
		c.ChartCache.TTL = 10 * time.Second
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Kafka.TicksTopic == "" {
		c.Kafka.TicksTopic = "pricepulse.ticks"
	}
	if c.Kafka.ChangeFeedTopic == "" {
		c.Kafka.ChangeFeedTopic = "pricepulse.changefeed"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "pricepulse"
	}
	if c.RetryQueue.Workers <= 0 {
		c.RetryQueue.Workers = 1
	}
	if c.RetryQueue.RetryLimit <= 0 {
		c.RetryQueue.RetryLimit = 5
	}
	if c.RetryQueue.RetryDelay <= 0 {
		c.RetryQueue.RetryDelay = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks if the configuration is valid. Missing durable-store or
// upstream settings are the only process-fatal conditions.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if c.Upstream.Pair == "" {
		return fmt.Errorf("upstream.pair is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.ClickHouse.Database == "" {
		return fmt.Errorf("clickhouse.database is required")
	}
	return nil
}
