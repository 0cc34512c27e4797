package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	LockBackend    string        `env:"LOCK_BACKEND" envDefault:"local"`
	RedisURL       string        `env:"REDIS_URL"`
	LockExpiry     time.Duration `env:"LOCK_EXPIRY" envDefault:"30s"`
	LockRetryDelay time.Duration `env:"LOCK_RETRY_DELAY" envDefault:"100ms"`

	// BalanceHoldDelay is slept while the account lock is held, before a
	// use/cancel runs. Used to exercise lock contention under load.
	BalanceHoldDelay time.Duration `env:"BALANCE_HOLD_DELAY" envDefault:"0s"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: dotenv: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when LOCK_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}

	if c.LockExpiry <= c.BalanceHoldDelay {
		return errors.New("LOCK_EXPIRY must exceed BALANCE_HOLD_DELAY")
	}
	if c.LockRetryDelay <= 0 {
		return errors.New("LOCK_RETRY_DELAY must be positive")
	}
	return nil
}
