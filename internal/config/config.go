// Package config содержит логику чтения конфигурации сервиса бронирований.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса бронирований.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	MpesaAddress        string `env:"MPESA_ADDRESS"`
	MpesaConsumerKey    string `env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret string `env:"MPESA_CONSUMER_SECRET"`
	MpesaShortCode      string `env:"MPESA_SHORTCODE"`
	MpesaPasskey        string `env:"MPESA_PASSKEY"`
	CallbackBaseURL     string `env:"CALLBACK_BASE_URL"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT"`
	SMTPFrom string `env:"SMTP_FROM"`

	// BookingHoldTTL задаёт срок жизни неоплаченного бронирования.
	// Нулевое значение отключает фоновую отмену.
	BookingHoldTTL time.Duration `env:"BOOKING_HOLD_TTL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envMpesaAddress := cfg.MpesaAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MpesaAddress, "m", "", "M-Pesa gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envMpesaAddress != "" {
		cfg.MpesaAddress = envMpesaAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "change-me"
	}

	return cfg, nil
}
