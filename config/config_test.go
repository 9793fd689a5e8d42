package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/bidtheater/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, time.Second, cfg.Auction.TickInterval)
	assert.Equal(t, 180, cfg.Auction.BiddingDuration)
	assert.Equal(t, 50.0, cfg.Strategy.GlobalMinBid)
	assert.Equal(t, 500.0, cfg.Strategy.GlobalMaxBid)
	assert.Equal(t, "high", cfg.Buffer.PriorityThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  http_port: 9090
auction:
  bidding_duration: 60
buffer:
  priority_threshold: critical
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 60, cfg.Auction.BiddingDuration)
	assert.Equal(t, domain.PriorityCritical, cfg.BufferEngineConfig().PriorityThreshold)
	// untouched sections keep their defaults
	assert.Equal(t, 120, cfg.Auction.DiscussionDuration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"zero tick interval", func(c *Config) { c.Auction.TickInterval = 0 }},
		{"zero phase duration", func(c *Config) { c.Auction.WarmupDuration = 0 }},
		{"probability above one", func(c *Config) { c.Auction.BiddingActionProb = 1.5 }},
		{"inverted bid range", func(c *Config) { c.Strategy.GlobalMaxBid = 10 }},
		{"zero batch size", func(c *Config) { c.Buffer.BatchSize = 0 }},
		{"empty database url", func(c *Config) { c.Storage.DatabaseURL = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEngineConfigMapping(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	ec := cfg.EngineConfig()
	assert.Equal(t, 30, ec.PhaseDurations[domain.PhaseWarmup])
	assert.Equal(t, 0.60, ec.ActionProbability[domain.PhaseBidding])
	assert.Equal(t, 0.5, ec.BidShare)

	sc := cfg.StrategyEngineConfig()
	assert.Equal(t, 50.0, sc.MinBid)
	assert.Equal(t, 0.7, sc.BaseConfidence)

	bc := cfg.BufferEngineConfig()
	assert.Equal(t, domain.PriorityHigh, bc.PriorityThreshold)
	assert.Equal(t, 10, bc.BatchSize)
}
