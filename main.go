package main

import (
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pgray/feedserver/app"
	"github.com/pgray/feedserver/config"
	"github.com/pgray/feedserver/lib/feedserver"
	"github.com/pgray/feedserver/lib/rss"
	"github.com/pgray/feedserver/lib/store"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewTransport),
		fx.Provide(store.NewRedis),
		fx.Provide(rss.NewFetcher),
		fx.Provide(feedserver.NewServer),
		fx.Provide(app.NewHTTPServer),

		fx.Invoke(func(*feedserver.Server) {}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
