package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestValidFeedURLs(t *testing.T) {
	cfg := &Config{
		log: zap.NewNop(),
		FeedURLs: []string{
			"http://example.com/rss",
			" https://example.org/feed.xml ",
			"not a url",
			"/relative/path",
			"",
		},
	}

	assert.Equal(t,
		[]string{"http://example.com/rss", "https://example.org/feed.xml"},
		cfg.validFeedURLs())
}

func TestRefreshInterval_Default(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Minute, cfg.RefreshInterval())

	cfg.RefreshIntervalSecs = 90
	assert.Equal(t, 90*time.Second, cfg.RefreshInterval())
}
