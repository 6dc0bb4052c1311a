// --- File: pushclient/config/yaml_config.go ---
package config

import (
	"fmt"
	"log/slog"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-client/pushclient"
)

type YamlRelayConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type YamlNatsConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	Transport   string          `yaml:"transport"`
	AccountURN  string          `yaml:"account_urn"`
	Types       []string        `yaml:"notification_types"`
	RelayConfig YamlRelayConfig `yaml:"relay"`
	NatsConfig  YamlNatsConfig  `yaml:"nats"`
	RedisConfig YamlRedisConfig `yaml:"redis"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		Transport: Transport(baseCfg.Transport),
		Relay: RelayConfig{
			Address: baseCfg.RelayConfig.Address,
			Port:    baseCfg.RelayConfig.Port,
		},
		Nats: NatsConfig{
			URL:           baseCfg.NatsConfig.URL,
			SubjectPrefix: baseCfg.NatsConfig.SubjectPrefix,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
	}

	if baseCfg.AccountURN != "" {
		account, err := urn.Parse(baseCfg.AccountURN)
		if err != nil {
			return nil, fmt.Errorf("invalid account_urn %q: %w", baseCfg.AccountURN, err)
		}
		cfg.AccountURN = account
	}

	for _, name := range baseCfg.Types {
		t, err := pushclient.ParseNotificationType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid notification_types entry: %w", err)
		}
		cfg.Types = append(cfg.Types, t)
	}

	return cfg, nil
}
