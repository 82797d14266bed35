// Package config loads the recorder configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration of the recorder.
type Config struct {
	Symbol          string        `yaml:"symbol"`
	Interval        string        `yaml:"interval"`
	RecentTrades    int           `yaml:"recent_trades"`
	BatchSize       int           `yaml:"batch_size"`
	KlinePageLimit  int           `yaml:"kline_page_limit"`
	CandlePolicy    string        `yaml:"candle_policy"` // append | latest | closed
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Exchange ExchangeConfig `yaml:"exchange"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ExchangeConfig holds Binance API settings.
type ExchangeConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"` // optional, sent as X-MBX-APIKEY
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // postgres | clickhouse | memory
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	MaxConns      int32  `yaml:"max_conns"`
}

// QueueConfig holds delivery queue settings.
type QueueConfig struct {
	Capacity int    `yaml:"capacity"`
	Overflow string `yaml:"overflow"` // block | drop_oldest
}

// RedisConfig holds the optional latest-record cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Storage backends.
const (
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
	BackendMemory     = "memory"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// SetSymbol overrides the trading symbol, normalized to upper case.
func (c *Config) SetSymbol(symbol string) {
	c.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
}

func (c *Config) applyDefaults() {
	if c.Symbol == "" {
		c.Symbol = "ETHUSDT"
	}
	c.Symbol = strings.ToUpper(c.Symbol)
	if c.Interval == "" {
		c.Interval = "1s"
	}
	if c.RecentTrades == 0 {
		c.RecentTrades = 1000
	}
	if c.BatchSize == 0 {
		c.BatchSize = 30
	}
	if c.KlinePageLimit == 0 {
		c.KlinePageLimit = 1000
	}
	if c.CandlePolicy == "" {
		c.CandlePolicy = "append"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	if c.Exchange.RestURL == "" {
		c.Exchange.RestURL = "https://api.binance.com"
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = 10 * time.Second
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = 3
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendPostgres
	}
	if c.Storage.MaxConns == 0 {
		c.Storage.MaxConns = 10
	}

	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 65536
	}
	if c.Queue.Overflow == "" {
		c.Queue.Overflow = "block"
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = time.Minute
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if c.RecentTrades < 1 || c.RecentTrades > 1000 {
		errs = append(errs, fmt.Errorf("recent_trades must be in [1, 1000], got %d", c.RecentTrades))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.KlinePageLimit < 1 || c.KlinePageLimit > 1000 {
		errs = append(errs, fmt.Errorf("kline_page_limit must be in [1, 1000], got %d", c.KlinePageLimit))
	}
	switch c.CandlePolicy {
	case "append", "latest", "closed":
	default:
		errs = append(errs, fmt.Errorf("unknown candle_policy %q", c.CandlePolicy))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	case BackendClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			errs = append(errs, errors.New("storage.clickhouse_dsn is required for the clickhouse backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	if c.Queue.Capacity < 1 {
		errs = append(errs, fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity))
	}
	switch c.Queue.Overflow {
	case "block", "drop_oldest":
	default:
		errs = append(errs, fmt.Errorf("unknown queue.overflow %q", c.Queue.Overflow))
	}

	return errors.Join(errs...)
}
