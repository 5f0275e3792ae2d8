// Package config handles application configuration from environment variables.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the application configuration.
type Config struct {
	GatewayID     string `env:"THREEMA_GATEWAY_ID, required"`
	GatewaySecret string `env:"THREEMA_GATEWAY_SECRET, required"`

	ListenAddr   string `env:"LISTEN_ADDR, default=:8080"`
	DatabasePath string `env:"DATABASE_PATH, default=./data/bot.db"`
	FeedURL      string `env:"FEED_URL, default=https://www.xcontest.org/rss/flights/?ccc"`

	PollInterval     time.Duration `env:"POLL_INTERVAL, default=5m"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT, default=30s"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT, default=10s"`
	DeliveryAttempts int           `env:"DELIVERY_ATTEMPTS, default=3"`

	AdminIdentity string `env:"ADMIN_IDENTITY"`
	LogLevel      string `env:"LOG_LEVEL, default=info"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if cfg.PollInterval < time.Second {
		return nil, fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", cfg.PollInterval)
	}
	if cfg.DeliveryAttempts < 1 {
		return nil, fmt.Errorf("DELIVERY_ATTEMPTS must be at least 1, got %d", cfg.DeliveryAttempts)
	}

	return &cfg, nil
}
