// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the settings that are not given as command line flags.
type Config struct {
	CodeLength      int    `env:"IZPOSOJA_RESERVATION_CODE_LENGTH"      envDefault:"6"`
	CodeChars       string `env:"IZPOSOJA_RESERVATION_CODE_CHARS"       envDefault:"ABCDEFGHJKLMNPQRSTUVWXYZ23456789"`
	AutomaticReturn bool   `env:"IZPOSOJA_RESERVATION_AUTOMATIC_RETURN" envDefault:"true"`

	// SweepTime is the local time of day the daily jobs run, as HH:MM.
	SweepTime string `env:"IZPOSOJA_SWEEP_TIME" envDefault:"06:00"`

	DeviceAPIKey string `env:"IZPOSOJA_DEVICE_API_KEY"`

	NotifyBuffer  int    `env:"IZPOSOJA_NOTIFY_BUFFER"   envDefault:"256"`
	RedisAddr     string `env:"IZPOSOJA_REDIS_ADDR"`
	RedisPassword string `env:"IZPOSOJA_REDIS_PASSWORD"`
	RedisChannel  string `env:"IZPOSOJA_REDIS_CHANNEL"   envDefault:"izposoja.events"`

	OTLPEndpoint string `env:"IZPOSOJA_OTLP_ENDPOINT"`
}

// Load reads the given .env files, skipping missing ones, and parses the
// environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for values the server cannot run with.
func (c Config) Validate() error {
	if c.CodeLength < 1 {
		return fmt.Errorf("reservation code length must be positive, got %d", c.CodeLength)
	}
	if len(c.CodeChars) < 2 {
		return errors.New("reservation code alphabet needs at least two characters")
	}
	if c.NotifyBuffer < 1 {
		return fmt.Errorf("notification buffer must be positive, got %d", c.NotifyBuffer)
	}
	if _, err := c.SweepClock(); err != nil {
		return err
	}
	return nil
}

// SweepClock returns SweepTime as an offset from midnight.
func (c Config) SweepClock() (time.Duration, error) {
	t, err := time.Parse("15:04", c.SweepTime)
	if err != nil {
		return 0, fmt.Errorf("invalid sweep time %q: %w", c.SweepTime, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
