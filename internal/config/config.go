package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Markets    MarketsConfig    `mapstructure:"markets"`
	Scorer     ScorerConfig     `mapstructure:"scorer"`
	Engine     EngineConfig     `mapstructure:"engine"`
	LogLevel   string           `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr             string `mapstructure:"addr"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	LedgerTTLSeconds int    `mapstructure:"ledger_ttl_seconds"`
}

type FeedConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	BatchSize int    `mapstructure:"batch_size"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type MarketsConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	TimeoutMs    int     `mapstructure:"timeout_ms"`
	Retries      int     `mapstructure:"retries"`
	RateLimitQPS float64 `mapstructure:"rate_limit_qps"`
	StreamURL    string  `mapstructure:"stream_url"` // websocket last-trade feed, optional
}

type ScorerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Retries   int    `mapstructure:"retries"`
}

type EngineConfig struct {
	EvalCron        string  `mapstructure:"eval_cron"`
	ResolveCron     string  `mapstructure:"resolve_cron"`
	SignalLookback  string  `mapstructure:"signal_lookback"`  // e.g. "30m"
	DefaultSlippage float64 `mapstructure:"default_slippage"` // applied when a strategy leaves slippage_pct unset
	RunOnStart      bool    `mapstructure:"run_on_start"`
}

// SignalLookbackDuration parses Engine.SignalLookback with a 30m
// fallback on bad input.
func (c *Config) SignalLookbackDuration() time.Duration {
	d, err := time.ParseDuration(c.Engine.SignalLookback)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. POLYCOPY_DATABASE_DSN
	viper.SetEnvPrefix("polycopy")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.metrics_path", "/metrics")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("redis.ledger_ttl_seconds", 604800)
	viper.SetDefault("feed.base_url", "https://data-api.polymarket.com")
	viper.SetDefault("feed.batch_size", 500)
	viper.SetDefault("feed.timeout_ms", 10000)
	viper.SetDefault("markets.base_url", "https://gamma-api.polymarket.com")
	viper.SetDefault("markets.timeout_ms", 5000)
	viper.SetDefault("markets.retries", 2)
	viper.SetDefault("markets.rate_limit_qps", 10.0)
	viper.SetDefault("scorer.timeout_ms", 3000)
	viper.SetDefault("scorer.retries", 1)
	viper.SetDefault("engine.eval_cron", "0 */2 * * * *")
	viper.SetDefault("engine.resolve_cron", "0 */15 * * * *")
	viper.SetDefault("engine.signal_lookback", "30m")
	viper.SetDefault("engine.default_slippage", 0.04)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
