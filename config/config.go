package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env        string `env:"ENVIRONMENT"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"3000"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"1"`

	RefreshIntervalSecs int `env:"REFRESH_INTERVAL_SECS" envDefault:"60"`

	// FeedURLs are registered at startup, comma-separated.
	FeedURLs []string `env:"FEED_URLS" envSeparator:","`

	log *zap.Logger
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		log.Sugar().Panicf("failed to parse config from environment: %v", err)
	}
	cfg.FeedURLs = cfg.validFeedURLs()
	return cfg
}

func (cfg *Config) validFeedURLs() []string {
	urls := make([]string, 0, len(cfg.FeedURLs))
	for _, raw := range cfg.FeedURLs {
		trimmed := strings.TrimSpace(raw)
		u, err := url.Parse(trimmed)
		if err != nil || u.Scheme == "" || u.Host == "" {
			cfg.log.Sugar().Warnf("ignoring seed feed URL '%s': not an absolute URL", raw)
			continue
		}
		urls = append(urls, trimmed)
	}
	return urls
}

// RefreshInterval is the polling cadence of the feed scheduler.
func (cfg *Config) RefreshInterval() time.Duration {
	if cfg.RefreshIntervalSecs <= 0 {
		return time.Minute
	}
	return time.Duration(cfg.RefreshIntervalSecs) * time.Second
}
