package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carrega toda a configuração do serviço de uma vez, no startup.
// Campos obrigatórios sem valor derrubam o processo imediatamente em vez de
// falharem no primeiro uso.
type Config struct {
	Port        string
	ServiceName string
	LogLevel    string

	DatabaseUser     string
	DatabasePassword string
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string

	AuthServiceURL string
	BankServiceURL string
	CartServiceURL string

	OTLPEndpoint string

	OutboxPeriod      time.Duration
	OutboxBatchSize   int
	OutboxMaxAttempts int
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "orders-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseUser:     os.Getenv("DATABASE_USER"),
		DatabasePassword: os.Getenv("DATABASE_PASSWORD"),
		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     getEnv("DATABASE_PORT", "5432"),
		DatabaseName:     getEnv("DATABASE_NAME", "orders_db"),

		AuthServiceURL: getEnv("AUTH_SERVICE_URL", "http://authservice:8080"),
		BankServiceURL: getEnv("BANK_SERVICE_URL", "http://bankservice:8080"),
		CartServiceURL: getEnv("CART_SERVICE_URL", "http://cartservice:8080"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}

	if cfg.DatabaseUser == "" {
		return Config{}, fmt.Errorf("DATABASE_USER is required")
	}
	if cfg.DatabasePassword == "" {
		return Config{}, fmt.Errorf("DATABASE_PASSWORD is required")
	}

	var err error
	cfg.OutboxPeriod, err = time.ParseDuration(getEnv("OUTBOX_PERIOD", "1s"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing OUTBOX_PERIOD: %w", err)
	}
	cfg.OutboxBatchSize, err = strconv.Atoi(getEnv("OUTBOX_BATCH_SIZE", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing OUTBOX_BATCH_SIZE: %w", err)
	}
	cfg.OutboxMaxAttempts, err = strconv.Atoi(getEnv("OUTBOX_MAX_ATTEMPTS", "5"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing OUTBOX_MAX_ATTEMPTS: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN monta a string de conexão do pool
func (c Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
