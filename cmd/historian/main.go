// cmd/historian/main.go drains the match action queue from Redis into Postgres and marks
// matches abandoned once they go quiet.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/bladeduel/internal/cache"
	"github.com/jason-s-yu/bladeduel/internal/config"
	"github.com/jason-s-yu/bladeduel/internal/database"
	"github.com/jason-s-yu/bladeduel/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	db, err := database.Open(ctx, cfg.PostgresURL())
	if err != nil {
		logger.WithError(err).Fatal("postgres unavailable")
	}
	defer db.Close()

	svc := historian.NewService(rdb, db, historian.Options{
		Queue:      cfg.Historian.QueueName,
		BatchSize:  cfg.Historian.BatchSize,
		FlushDelay: cfg.Historian.FlushDelay(),
		Inactivity: cfg.Historian.InactivityTimeout,
	}, logger)
	svc.Run(ctx)
}
