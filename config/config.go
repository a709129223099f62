/*
config.go - Server configuration

PURPOSE:

	Loads server settings from an optional .env file and the process
	environment. cmd/server applies command-line flags on top.

KEYS:

	PORT                HTTP port (8080)
	DB_PATH             SQLite path, ":memory:" for a throwaway store (coaching.db)
	JWT_SECRET          HMAC secret for bearer tokens (required)
	DEV_AUTH            Enable POST /api/auth/token (false)
	ALLOWED_ORIGINS     Comma-separated CORS origins
	TIMEZONE            IANA zone for calendar days and month buckets (UTC)
	HORIZON_DAYS        Recurrence horizon in days (28)
	SCHEDULER_INTERVAL  How often templates are re-expanded (1h)
	SCHEDULER_ENABLED   Run the recurrence scheduler (true)
	REDIS_ADDR          Enables the distributed locker when set
	REDIS_PASSWORD, REDIS_DB, LOCK_TTL
	AMQP_URL            Enables lifecycle event publishing when set
	AMQP_QUEUE          Queue name (coaching.events)

SEE ALSO:
  - cmd/server/main.go: Wiring
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"coaching.db"`

	JWTSecret      string   `env:"JWT_SECRET"`
	DevAuth        bool     `env:"DEV_AUTH" envDefault:"false"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	Timezone          string        `env:"TIMEZONE" envDefault:"UTC"`
	HorizonDays       int           `env:"HORIZON_DAYS" envDefault:"28"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1h"`
	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"10s"`

	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"coaching.events"`
}

// Load reads files (default ".env") if present, then the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.HorizonDays <= 0 {
		return fmt.Errorf("HORIZON_DAYS must be > 0, got %d", c.HorizonDays)
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be > 0, got %s", c.SchedulerInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
