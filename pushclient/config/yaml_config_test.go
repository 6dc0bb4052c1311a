// --- File: pushclient/config/yaml_config_test.go ---
package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-client/pushclient"
	"github.com/tinywideclouds/go-push-client/pushclient/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			Transport:  "relay",
			AccountURN: "urn:sm:user:yaml-account",
			Types:      []string{"badge", "sound"},
			RelayConfig: config.YamlRelayConfig{
				Address: "relay.yaml.local",
				Port:    8090,
			},
			NatsConfig: config.YamlNatsConfig{
				URL:           "nats://yaml.local:4222",
				SubjectPrefix: "yaml.push",
			},
			RedisConfig: config.YamlRedisConfig{
				Addr:     "redis.yaml.local:6379",
				Password: "yaml-secret",
				DB:       2,
				Enabled:  true,
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, config.TransportRelay, cfg.Transport)
		assert.Equal(t, mustURN(t, "urn:sm:user:yaml-account"), cfg.AccountURN)
		assert.Equal(t, []pushclient.NotificationType{pushclient.TypeBadge, pushclient.TypeSound}, cfg.Types)

		assert.Equal(t, "relay.yaml.local", cfg.Relay.Address)
		assert.Equal(t, 8090, cfg.Relay.Port)

		assert.Equal(t, "nats://yaml.local:4222", cfg.Nats.URL)
		assert.Equal(t, "yaml.push", cfg.Nats.SubjectPrefix)

		assert.Equal(t, "redis.yaml.local:6379", cfg.Redis.Addr)
		assert.Equal(t, "yaml-secret", cfg.Redis.Password)
		assert.Equal(t, 2, cfg.Redis.DB)
		assert.True(t, cfg.Redis.Enabled)
	})

	t.Run("Failure - invalid account urn", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{AccountURN: "not-a-urn"}

		_, err := config.NewConfigFromYaml(yamlCfg, logger)
		assert.Error(t, err)
	})

	t.Run("Failure - invalid type name", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			AccountURN: "urn:sm:user:yaml-account",
			Types:      []string{"badge", "vibrate"},
		}

		_, err := config.NewConfigFromYaml(yamlCfg, logger)
		assert.Error(t, err)
	})
}
