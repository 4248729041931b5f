// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/cache"
	"github.com/jason-s-yu/bladeduel/internal/config"
	"github.com/jason-s-yu/bladeduel/internal/database"
	"github.com/jason-s-yu/bladeduel/internal/handlers"
	"github.com/jason-s-yu/bladeduel/internal/historian"
	"github.com/jason-s-yu/bladeduel/internal/matchmaking"
	"github.com/jason-s-yu/bladeduel/internal/middleware"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/jason-s-yu/bladeduel/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// queuedLog sends action rows through the historian queue instead of writing them inline.
type queuedLog struct {
	*database.Postgres
	pub *historian.Publisher
}

func (q queuedLog) LogAction(ctx context.Context, e models.MatchLogEntry) error {
	return q.pub.LogAction(ctx, e)
}

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
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
	if err := db.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("failed to migrate schema")
	}
	if _, err := db.EnsureBotPlayer(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ensure bot player")
	}

	ttl, err := auth.ParseTokenExpireTime(cfg.TokenExpireTime)
	if err != nil {
		logger.WithError(err).Fatal("invalid TOKEN_EXPIRE_TIME")
	}
	var issuer *auth.Issuer
	if cfg.PersistentKeys() {
		issuer, err = auth.NewIssuerFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, ttl)
	} else {
		logger.Warn("no JWT key paths set, tokens will not survive a restart")
		issuer, err = auth.NewIssuer(ttl)
	}
	if err != nil {
		logger.WithError(err).Fatal("failed to create token issuer")
	}

	store := cache.NewSessionStore(rdb)

	var persistence session.Persistence = db
	if cfg.Historian.Enabled {
		persistence = queuedLog{Postgres: db, pub: historian.NewPublisher(rdb, cfg.Historian.QueueName)}
		logger.WithField("queue", cfg.Historian.QueueName).Info("match actions routed through historian")
	}

	hub := handlers.NewHub(logger)
	coord := session.NewCoordinator(session.Deps{
		Identity:    issuer,
		Persistence: persistence,
		Store:       store,
		Queue:       matchmaking.NewQueue(store),
		Notifier:    hub,
		Logger:      logger,
		Timings: session.Timings{
			TurnTimeout:       cfg.Game.TurnTimeout,
			CountdownDelay:    cfg.Game.CountdownDelay,
			BotCountdownDelay: cfg.Game.BotCountdownDelay,
			BotThinkDelay:     cfg.Game.BotThinkDelay,
		},
	})
	defer coord.Close()

	api := handlers.NewAPI(logger, db, issuer, ttl, coord.Registry(), store)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Heartbeat("/ping"))

	r.Get("/duel/ws", handlers.DuelWSHandler(logger, hub, coord, cfg.CORSOrigins))
	api.Routes(r)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server exited")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
