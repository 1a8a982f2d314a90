package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is built once at startup and passed down explicitly.
type Config struct {
	HTTP     HTTP                 `envPrefix:"HTTP_"`
	Log      utilities.Config     `envPrefix:"LOG_"`
	Store    Store                `envPrefix:"STORE_"`
	Mongo    database.MongoConfig `envPrefix:"MONGO_"`
	Postgres database.Config      `envPrefix:"DATABASE_"`
	JWT      JWT                  `envPrefix:"JWT_"`
	Bcrypt   Bcrypt               `envPrefix:"BCRYPT_"`
}

// HTTP contains listener and CORS parameters.
type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:"0.0.0.0:3001"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Store selects the user directory backend.
type Store struct {
	Driver string `env:"DRIVER" envDefault:"mongo"`
}

// JWT contains token signing parameters. Secret has no default.
type JWT struct {
	Secret string        `env:"SECRET,notEmpty"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
	Issuer string        `env:"ISSUER" envDefault:"service-account"`
}

// Bcrypt contains the password hashing work factor.
type Bcrypt struct {
	Cost int `env:"COST" envDefault:"10"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("jwt ttl must be positive, got %s", c.JWT.TTL)
	}
	return nil
}
