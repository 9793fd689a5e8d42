// Package config provides configuration for the bidding theater service.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ideaforge/bidtheater/buffer"
	"github.com/ideaforge/bidtheater/domain"
	"github.com/ideaforge/bidtheater/engine"
	"github.com/ideaforge/bidtheater/strategy"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auction  AuctionConfig  `mapstructure:"auction"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Buffer   BufferConfig   `mapstructure:"buffer"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Personas PersonaConfig  `mapstructure:"personas"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP and WebSocket server settings.
type ServerConfig struct {
	HTTPPort       int           `mapstructure:"http_port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// AuctionConfig holds the phase clock settings. Durations are in ticks.
type AuctionConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	WarmupDuration     int           `mapstructure:"warmup_duration"`
	DiscussionDuration int           `mapstructure:"discussion_duration"`
	BiddingDuration    int           `mapstructure:"bidding_duration"`
	PredictionDuration int           `mapstructure:"prediction_duration"`
	ResultDuration     int           `mapstructure:"result_duration"`

	WarmupActionProb     float64 `mapstructure:"warmup_action_prob"`
	DiscussionActionProb float64 `mapstructure:"discussion_action_prob"`
	BiddingActionProb    float64 `mapstructure:"bidding_action_prob"`
	PredictionActionProb float64 `mapstructure:"prediction_action_prob"`
	ResultActionProb     float64 `mapstructure:"result_action_prob"`

	BidShare    float64       `mapstructure:"bid_share"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// StrategyConfig holds the bid pricing parameters.
type StrategyConfig struct {
	GlobalMinBid   float64 `mapstructure:"global_min_bid"`
	GlobalMaxBid   float64 `mapstructure:"global_max_bid"`
	BaseConfidence float64 `mapstructure:"base_confidence"`
}

// BufferConfig holds the broadcast buffer settings.
type BufferConfig struct {
	MaxBufferSize        int           `mapstructure:"max_buffer_size"`
	FlushInterval        time.Duration `mapstructure:"flush_interval"`
	PriorityThreshold    string        `mapstructure:"priority_threshold"`
	BatchSize            int           `mapstructure:"batch_size"`
	DedupWindowPerSource int           `mapstructure:"dedup_window_per_source"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryBackoff         time.Duration `mapstructure:"retry_backoff"`
}

// StorageConfig holds settlement persistence settings.
type StorageConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// PersonaConfig holds catalog settings.
type PersonaConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file and environment variables.
// An empty path loads defaults plus BIDTHEATER_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BIDTHEATER")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.ping_interval", "30s")
	v.SetDefault("server.max_message_size", 4096)

	v.SetDefault("auction.tick_interval", "1s")
	v.SetDefault("auction.warmup_duration", 30)
	v.SetDefault("auction.discussion_duration", 120)
	v.SetDefault("auction.bidding_duration", 180)
	v.SetDefault("auction.prediction_duration", 60)
	v.SetDefault("auction.result_duration", 30)
	v.SetDefault("auction.warmup_action_prob", 0.15)
	v.SetDefault("auction.discussion_action_prob", 0.40)
	v.SetDefault("auction.bidding_action_prob", 0.60)
	v.SetDefault("auction.prediction_action_prob", 0.30)
	v.SetDefault("auction.result_action_prob", 0.10)
	v.SetDefault("auction.bid_share", 0.5)
	v.SetDefault("auction.grace_period", "60s")

	v.SetDefault("strategy.global_min_bid", 50.0)
	v.SetDefault("strategy.global_max_bid", 500.0)
	v.SetDefault("strategy.base_confidence", 0.7)

	v.SetDefault("buffer.max_buffer_size", 50)
	v.SetDefault("buffer.flush_interval", "1s")
	v.SetDefault("buffer.priority_threshold", "high")
	v.SetDefault("buffer.batch_size", 10)
	v.SetDefault("buffer.dedup_window_per_source", 3)
	v.SetDefault("buffer.max_retries", 3)
	v.SetDefault("buffer.retry_backoff", "100ms")

	v.SetDefault("storage.database_url", "file:bidtheater.db?cache=shared&mode=rwc")

	v.SetDefault("personas.catalog_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be a valid port")
	}
	if c.Auction.TickInterval <= 0 {
		return fmt.Errorf("auction.tick_interval must be positive")
	}
	for name, d := range map[string]int{
		"warmup_duration":     c.Auction.WarmupDuration,
		"discussion_duration": c.Auction.DiscussionDuration,
		"bidding_duration":    c.Auction.BiddingDuration,
		"prediction_duration": c.Auction.PredictionDuration,
		"result_duration":     c.Auction.ResultDuration,
	} {
		if d < 1 {
			return fmt.Errorf("auction.%s must be at least 1 tick", name)
		}
	}
	for name, p := range map[string]float64{
		"warmup_action_prob":     c.Auction.WarmupActionProb,
		"discussion_action_prob": c.Auction.DiscussionActionProb,
		"bidding_action_prob":    c.Auction.BiddingActionProb,
		"prediction_action_prob": c.Auction.PredictionActionProb,
		"result_action_prob":     c.Auction.ResultActionProb,
		"bid_share":              c.Auction.BidShare,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("auction.%s must be within [0, 1]", name)
		}
	}
	if c.Strategy.GlobalMaxBid <= c.Strategy.GlobalMinBid {
		return fmt.Errorf("strategy.global_max_bid must exceed strategy.global_min_bid")
	}
	if c.Strategy.BaseConfidence < 0 || c.Strategy.BaseConfidence > 1 {
		return fmt.Errorf("strategy.base_confidence must be within [0, 1]")
	}
	if c.Buffer.MaxBufferSize < 1 {
		return fmt.Errorf("buffer.max_buffer_size must be at least 1")
	}
	if c.Buffer.BatchSize < 1 {
		return fmt.Errorf("buffer.batch_size must be at least 1")
	}
	if c.Buffer.DedupWindowPerSource < 1 {
		return fmt.Errorf("buffer.dedup_window_per_source must be at least 1")
	}
	if c.Storage.DatabaseURL == "" {
		return fmt.Errorf("storage.database_url is required")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}

// EngineConfig maps the auction section onto the session clock configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		TickInterval: c.Auction.TickInterval,
		PhaseDurations: map[domain.Phase]int{
			domain.PhaseWarmup:     c.Auction.WarmupDuration,
			domain.PhaseDiscussion: c.Auction.DiscussionDuration,
			domain.PhaseBidding:    c.Auction.BiddingDuration,
			domain.PhasePrediction: c.Auction.PredictionDuration,
			domain.PhaseResult:     c.Auction.ResultDuration,
		},
		ActionProbability: map[domain.Phase]float64{
			domain.PhaseWarmup:     c.Auction.WarmupActionProb,
			domain.PhaseDiscussion: c.Auction.DiscussionActionProb,
			domain.PhaseBidding:    c.Auction.BiddingActionProb,
			domain.PhasePrediction: c.Auction.PredictionActionProb,
			domain.PhaseResult:     c.Auction.ResultActionProb,
		},
		BidShare:      c.Auction.BidShare,
		GracePeriod:   c.Auction.GracePeriod,
		CostPerSpeech: engine.DefaultConfig().CostPerSpeech,
		CostPerBid:    engine.DefaultConfig().CostPerBid,
	}
}

// StrategyEngineConfig maps the strategy section onto the pricing parameters.
func (c *Config) StrategyEngineConfig() strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.MinBid = c.Strategy.GlobalMinBid
	cfg.MaxBid = c.Strategy.GlobalMaxBid
	cfg.BaseConfidence = c.Strategy.BaseConfidence
	return cfg
}

// BufferEngineConfig maps the buffer section onto the dispatcher settings.
func (c *Config) BufferEngineConfig() buffer.Config {
	return buffer.Config{
		MaxBufferSize:        c.Buffer.MaxBufferSize,
		FlushInterval:        c.Buffer.FlushInterval,
		PriorityThreshold:    domain.ParsePriority(c.Buffer.PriorityThreshold),
		BatchSize:            c.Buffer.BatchSize,
		DedupWindowPerSource: c.Buffer.DedupWindowPerSource,
		MaxRetries:           c.Buffer.MaxRetries,
		RetryBackoff:         c.Buffer.RetryBackoff,
	}
}
