package main

import (
	"fmt"
	"os"
	"time"
)

// Драйверы хранилища.
const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

// Источники REST токена для workers.
const (
	credentialsStatic  = "static"
	credentialsKeyring = "keyring"
)

// config — настройки процесса из переменных окружения.
type config struct {
	dbURL            string
	storeDriver      string
	rabbitURL        string
	apiPort          string
	executionTimeout time.Duration
	reconcileSpec    string
	credentialSource string
	restToken        string
	keyringService   string
	keyringUser      string
}

func loadConfig() (config, error) {
	cfg := config{
		dbURL:            os.Getenv("DB_URL"),
		storeDriver:      envOr("STORE_DRIVER", driverPostgres),
		rabbitURL:        os.Getenv("RABBITMQ_URL"),
		apiPort:          envOr("API_PORT", "8080"),
		reconcileSpec:    os.Getenv("RECONCILE_SCHEDULE"),
		credentialSource: envOr("CREDENTIAL_SOURCE", credentialsStatic),
		restToken:        os.Getenv("REST_TOKEN"),
		keyringService:   envOr("KEYRING_SERVICE", "helmsman"),
		keyringUser:      envOr("KEYRING_USER", "rest-token"),
	}

	if v := os.Getenv("EXECUTION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("EXECUTION_TIMEOUT: %w", err)
		}
		cfg.executionTimeout = d
	}

	switch cfg.storeDriver {
	case driverPostgres, driverMemory:
	default:
		return cfg, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.storeDriver)
	}

	switch cfg.credentialSource {
	case credentialsStatic, credentialsKeyring:
	default:
		return cfg, fmt.Errorf("CREDENTIAL_SOURCE: unknown source %q", cfg.credentialSource)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
