// Package config содержит логику чтения конфигурации шлюза.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации шлюза оформления покупок.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	BackendAddress string        `env:"BACKEND_ADDRESS"`
	ReturnURLBase  string        `env:"RETURN_URL_BASE"`
	StripeKey      string        `env:"STRIPE_SECRET_KEY"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	PollInterval   time.Duration `env:"POLL_INTERVAL"`
	PollDeadline   time.Duration `env:"POLL_DEADLINE"`
	SessionTTL     time.Duration `env:"SESSION_TTL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBackendAddress := cfg.BackendAddress
	envReturnURLBase := cfg.ReturnURLBase
	envPollInterval := cfg.PollInterval
	envPollDeadline := cfg.PollDeadline

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BackendAddress, "b", "", "backend API address")
	flag.StringVar(&cfg.ReturnURLBase, "r", "", "base URL of the checkout result page")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 3*time.Second, "delay between transaction status polls")
	flag.DurationVar(&cfg.PollDeadline, "poll-deadline", 120*time.Second, "total polling budget per purchase")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBackendAddress != "" {
		cfg.BackendAddress = envBackendAddress
	}
	if envReturnURLBase != "" {
		cfg.ReturnURLBase = envReturnURLBase
	}
	if envPollInterval > 0 {
		cfg.PollInterval = envPollInterval
	}
	if envPollDeadline > 0 {
		cfg.PollDeadline = envPollDeadline
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}

	return cfg, nil
}
