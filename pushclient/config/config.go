// --- File: pushclient/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-client/pushclient"
)

// Transport selects the bridge implementation.
type Transport string

const (
	TransportRelay Transport = "relay"
	TransportNats  Transport = "nats"
)

type RelayConfig struct {
	Address string
	Port    int
}

type NatsConfig struct {
	URL           string
	SubjectPrefix string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	Transport  Transport
	AccountURN urn.URN
	Types      []pushclient.NotificationType

	Relay RelayConfig
	Nats  NatsConfig
	Redis RedisConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("TRANSPORT"); val != "" {
		logger.Debug("Overriding config value", "key", "TRANSPORT", "source", "env")
		cfg.Transport = Transport(val)
	}
	if val := os.Getenv("ACCOUNT_URN"); val != "" {
		logger.Debug("Overriding config value", "key", "ACCOUNT_URN", "source", "env")
		account, err := urn.Parse(val)
		if err != nil {
			return nil, fmt.Errorf("invalid ACCOUNT_URN: %w", err)
		}
		cfg.AccountURN = account
	}
	if val := os.Getenv("NOTIFICATION_TYPES"); val != "" {
		logger.Debug("Overriding config value", "key", "NOTIFICATION_TYPES", "source", "env")
		var types []pushclient.NotificationType
		for _, name := range strings.Split(val, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				t, err := pushclient.ParseNotificationType(trimmed)
				if err != nil {
					return nil, fmt.Errorf("invalid NOTIFICATION_TYPES: %w", err)
				}
				types = append(types, t)
			}
		}
		cfg.Types = types
	}

	// Relay Overrides
	if val := os.Getenv("RELAY_ADDRESS"); val != "" {
		logger.Debug("Overriding config value", "key", "RELAY_ADDRESS", "source", "env")
		cfg.Relay.Address = val
	}
	if val := os.Getenv("RELAY_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil && port > 0 {
			logger.Debug("Overriding config value", "key", "RELAY_PORT", "source", "env")
			cfg.Relay.Port = port
		}
	}

	// NATS Overrides
	if val := os.Getenv("NATS_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "NATS_URL", "source", "env")
		cfg.Nats.URL = val
	}
	if val := os.Getenv("NATS_SUBJECT_PREFIX"); val != "" {
		logger.Debug("Overriding config value", "key", "NATS_SUBJECT_PREFIX", "source", "env")
		cfg.Nats.SubjectPrefix = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// 2. Final Validation
	if cfg.Transport == "" {
		cfg.Transport = TransportRelay
	}
	switch cfg.Transport {
	case TransportRelay:
		if cfg.Relay.Address == "" {
			return nil, fmt.Errorf("relay address is required (set via YAML or RELAY_ADDRESS env var)")
		}
		if cfg.Relay.Port <= 0 {
			return nil, fmt.Errorf("relay port is required (set via YAML or RELAY_PORT env var)")
		}
	case TransportNats:
		if cfg.Nats.URL == "" {
			return nil, fmt.Errorf("nats url is required (set via YAML or NATS_URL env var)")
		}
		if cfg.Nats.SubjectPrefix == "" {
			cfg.Nats.SubjectPrefix = "push.bridge"
		}
	default:
		return nil, fmt.Errorf("unknown transport %q (want %q or %q)", cfg.Transport, TransportRelay, TransportNats)
	}
	var zeroURN urn.URN
	if cfg.AccountURN == zeroURN {
		return nil, fmt.Errorf("account_urn is required (set via YAML or ACCOUNT_URN env var)")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
