// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting of the duel server and the historian.
// Values come from the environment; cmd/* autoload a .env file first.
type Config struct {
	Port     string `env:"PORT" envDefault:"5000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// DatabaseURL wins over the discrete POSTGRES_* / PG_* variables when set.
	DatabaseURL      string `env:"DATABASE_URL"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"bladeduel"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PGHost           string `env:"PG_HOST" envDefault:"localhost"`
	PGPort           string `env:"PG_PORT" envDefault:"5432"`
	PGDatabase       string `env:"PG_DATABASE" envDefault:"bladeduel_db"`

	TokenExpireTime string   `env:"TOKEN_EXPIRE_TIME" envDefault:"24h"`

	// Raw ed25519 key files. Without both, a key pair is generated at startup.
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
	CORSOrigins     []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	Game GameConfig

	Historian HistorianConfig
}

// GameConfig controls session timings.
type GameConfig struct {
	TurnTimeout       time.Duration `env:"TURN_TIMEOUT" envDefault:"20s"`
	CountdownDelay    time.Duration `env:"COUNTDOWN_DELAY" envDefault:"3s"`
	BotCountdownDelay time.Duration `env:"BOT_COUNTDOWN_DELAY" envDefault:"1500ms"`
	BotThinkDelay     time.Duration `env:"BOT_THINK_DELAY" envDefault:"800ms"`
}

// HistorianConfig controls the match action queue.
type HistorianConfig struct {
	Enabled   bool   `env:"HISTORIAN_ENABLED" envDefault:"false"`
	QueueName string `env:"HISTORIAN_QUEUE_NAME" envDefault:"bladeduel_actions"`
	BatchSize int    `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	FlushMs   int    `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`

	// InactivityTimeout marks a match abandoned when no action arrived for this long.
	InactivityTimeout time.Duration `env:"MATCH_INACTIVITY_TIMEOUT" envDefault:"10m"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// PostgresURL returns DATABASE_URL, or a URL assembled from the discrete variables.
func (c *Config) PostgresURL() string {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PGHost,
		c.PGPort,
		c.PGDatabase,
	)
}

// PersistentKeys reports whether both JWT key paths are set.
func (c *Config) PersistentKeys() bool {
	return c.JWTPrivateKeyPath != "" && c.JWTPublicKeyPath != ""
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// FlushDelay is the historian flush period.
func (h HistorianConfig) FlushDelay() time.Duration {
	return time.Duration(h.FlushMs) * time.Millisecond
}
