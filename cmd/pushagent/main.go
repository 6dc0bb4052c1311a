// --- File: cmd/pushagent/main.go ---
package main

import (
	"context"
	_ "embed"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-client/internal/executor/nats"
	"github.com/tinywideclouds/go-push-client/internal/executor/relay"
	"github.com/tinywideclouds/go-push-client/internal/storage/cache"
	"github.com/tinywideclouds/go-push-client/pkg/bridge"
	"github.com/tinywideclouds/go-push-client/pushclient"
	"github.com/tinywideclouds/go-push-client/pushclient/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-agent")
	slog.SetDefault(logger)

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Bridge Executor ---
	var executor bridge.Executor
	switch cfg.Transport {
	case config.TransportNats:
		natsExecutor, err := nats.NewExecutor(cfg.Nats.URL, cfg.Nats.SubjectPrefix, logger)
		if err != nil {
			logger.Error("NATS executor failed", "err", err)
			os.Exit(1)
		}
		executor = natsExecutor
		logger.Info("Bridge executor initialized", "transport", "nats", "url", cfg.Nats.URL)
	default:
		relayExecutor := relay.NewExecutor(logger)
		defer func() { _ = relayExecutor.Close() }()
		executor = relayExecutor
		logger.Info("Bridge executor initialized", "transport", "relay")
	}

	// --- Snapshot Store (Optional) ---
	var snapshots pushclient.SnapshotStore
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis snapshot layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer func() { _ = redisClient.Close() }()
		snapshots = cache.NewSnapshotStore(redisClient, 24*time.Hour)
		logger.Info("Snapshot store enabled", "type", "redis")
	}

	// --- Client ---
	client := pushclient.New(executor, snapshots, logger)

	if cfg.Transport == config.TransportRelay {
		client.ConnectToServer(cfg.Relay.Address, cfg.Relay.Port)
	}
	client.SetAccountID(cfg.AccountURN)

	if err := client.Register(
		func(token string) {
			logger.Info("Device registered", "token", token)
		},
		func(err error) {
			logger.Error("Device registration failed", "err", err)
		},
	); err != nil {
		logger.Error("Register rejected", "err", err)
		os.Exit(1)
	}

	client.ConfigureTypes(
		func() { logger.Info("Notification types configured", "types", cfg.Types) },
		func(err error) { logger.Error("Failed to configure notification types", "err", err) },
		cfg.Types...,
	)

	if err := client.SetListener(func(n pushclient.Notification) {
		logger.Info("Notification received",
			"message", n.Message,
			"sound", n.Sound,
			"icon_badge_count", n.IconBadgeCount,
		)
	}); err != nil {
		logger.Error("Listener rejected", "err", err)
		os.Exit(1)
	}

	logger.Info("Push agent running. Waiting for notifications...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down...")
	done := make(chan struct{})
	client.Unregister(func() {
		logger.Info("Device unregistered")
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logger.Warn("Unregister did not complete before shutdown deadline")
	}
}
