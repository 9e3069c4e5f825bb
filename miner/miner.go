// Package miner wires the training loop to its runtime dependencies:
// hub gateway, wallet, run state store, resource monitor, and the
// Prometheus metrics endpoint.
package miner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/hub"
	"github.com/swarmml/swarmtrain/identity"
	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/monitor"
	"github.com/swarmml/swarmtrain/pkg/metrics"
	"github.com/swarmml/swarmtrain/runstate"
	"github.com/swarmml/swarmtrain/trainer"
)

const (
	svcName         = "miner"
	envPrefix       = "SWARMTRAIN_MINER_"
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"`
	InstanceID string `env:"INSTANCE_ID"`
	Hotkey     string `env:"HOTKEY"`
	DataDir    string `env:"DATA_DIR"    envDefault:"./data"`
	HTTPPort   string `env:"HTTP_PORT"   envDefault:"9101"`

	// Hub selects the gateway: "local" trains against a shared filesystem
	// hub, "registry" against OCI registries.
	Hub          string `env:"HUB"           envDefault:"local"`
	StagingDir   string `env:"STAGING_DIR"   envDefault:"./data/staging"`
	AveragingDir string `env:"AVERAGING_DIR" envDefault:"./data/averaging"`
	OutboxDir    string `env:"OUTBOX_DIR"    envDefault:"./data/outbox"`

	ModelRepo         string `env:"MODEL_REPO"`
	SubmitRepo        string `env:"SUBMIT_REPO"`
	RegistryUsername  string `env:"REGISTRY_USERNAME"`
	RegistryPassword  string `env:"REGISTRY_PASSWORD"`
	RegistryPlainHTTP bool   `env:"REGISTRY_PLAIN_HTTP" envDefault:"false"`

	MQTTAddress string        `env:"MQTT_ADDRESS"`
	MQTTQoS     uint8         `env:"MQTT_QOS"     envDefault:"1"`
	MQTTTimeout time.Duration `env:"MQTT_TIMEOUT" envDefault:"30s"`
	SwarmID     string        `env:"SWARM_ID"     envDefault:"default"`
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse miner environment: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	return cfg, nil
}

// Start runs the miner until the context is cancelled or the final epoch
// completes. The training workload itself comes from trainer.LoadConfig.
func Start(ctx context.Context, cancel context.CancelFunc, cfg Config, m model.Module, train, test dataset.Loader) error {
	g, ctx := errgroup.WithContext(ctx)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var wallet identity.Wallet
	if cfg.Hotkey != "" {
		w, err := identity.NewStaticWallet(cfg.Hotkey)
		if err != nil {
			return err
		}
		wallet = w
	} else {
		wallet = identity.NewDevWallet()
		logger.Warn("no hotkey configured, using ephemeral dev wallet", slog.String("hotkey", wallet.Hotkey()))
	}

	trainCfg, err := trainer.LoadConfig()
	if err != nil {
		return err
	}

	gateway, watcher, err := buildGateway(cfg, wallet, logger)
	if err != nil {
		return err
	}
	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start model watcher: %w", err)
		}
		defer func() {
			if err := watcher.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect model watcher", slog.Any("error", err))
			}
		}()
	}

	store, err := runstate.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close run state store", slog.Any("error", err))
		}
	}()

	sink := metrics.NewPrometheusSink("miner_" + wallet.Hotkey())

	loop, err := trainer.NewLoop(trainCfg, m, train, gateway, wallet, sink, logger)
	if err != nil {
		return err
	}
	loop.WithUsage(monitor.NewCollector()).WithRunState(store)
	if test != nil {
		loop.WithTestLoader(test)
	}

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: promhttp.Handler()}

	g.Go(func() error {
		logger.Info("metrics endpoint listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()

		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		defer cancel()

		return loop.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))

		return err
	}
	logger.Info(fmt.Sprintf("%s service stopped", svcName))

	return nil
}

func buildGateway(cfg Config, wallet identity.Wallet, logger *slog.Logger) (hub.Gateway, *hub.Watcher, error) {
	switch cfg.Hub {
	case "local":
		gw, err := hub.NewLocal(cfg.StagingDir, cfg.AveragingDir, cfg.OutboxDir, wallet.Hotkey(), logger)
		if err != nil {
			return nil, nil, err
		}

		return gw, nil, nil
	case "registry":
		gw, err := hub.NewRegistry(hub.RegistryConfig{
			ModelRepo:  cfg.ModelRepo,
			SubmitRepo: cfg.SubmitRepo,
			Username:   cfg.RegistryUsername,
			Password:   cfg.RegistryPassword,
			PlainHTTP:  cfg.RegistryPlainHTTP,
		}, cfg.StagingDir, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.MQTTAddress == "" {
			return gw, nil, nil
		}

		watcher, err := hub.NewWatcher(cfg.MQTTAddress, "miner-"+cfg.InstanceID, cfg.SwarmID, cfg.MQTTQoS, cfg.MQTTTimeout, logger)
		if err != nil {
			return nil, nil, err
		}

		return gw.WithWatcher(watcher), watcher, nil
	default:
		return nil, nil, fmt.Errorf("unknown hub kind %q", cfg.Hub)
	}
}
