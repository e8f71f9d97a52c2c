package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	"github.com/DenzelPenzel/ton-agent/internal/actions/utilaction"
	"github.com/DenzelPenzel/ton-agent/internal/actions/walletaction"
	"github.com/DenzelPenzel/ton-agent/internal/agent"
	"github.com/DenzelPenzel/ton-agent/internal/config"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/observability/alerting"
	storage "github.com/DenzelPenzel/ton-agent/internal/storage/mysql"
	"github.com/DenzelPenzel/ton-agent/internal/task"
	"github.com/DenzelPenzel/ton-agent/internal/wallet"
	"github.com/DenzelPenzel/ton-agent/internal/wallet/ton"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// runtimeDeps lets tests replace the liteserver dialer.
type runtimeDeps struct {
	dialer ton.Dialer
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	agent   *agent.Agent
	wallet  wallet.Provider
	closers []func() error
}

func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func initLogging(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		AddSource:   cfg.Log.AddSource,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
			Compress:   cfg.Log.Audit.Compress,
		},
	})
}

// buildApp connects the wallet and attaches the configured providers.
func buildApp(ctx context.Context, cfg *config.Config, deps runtimeDeps) (*app, error) {
	defs, err := config.LoadNetworkDefinitions(cfg.Wallet.NetworksFile)
	if err != nil {
		return nil, err
	}
	resolved := cfg.Wallet.Resolve(defs)

	network, err := wallet.ParseNetwork(resolved.Network)
	if err != nil {
		return nil, err
	}

	opts := []ton.Option{ton.WithFactoryLogger(logger.Named("wallet"))}
	if deps.dialer != nil {
		opts = append(opts, ton.WithDialer(deps.dialer))
	}
	wp, closeWallet, err := ton.ConfigureWithWallet(ctx, ton.Config{
		RPCEndpoint:     resolved.RPCEndpoint,
		RPCKey:          resolved.RPCKey,
		Mnemonic:        resolved.Mnemonic,
		MnemonicFormat:  ton.MnemonicFormat(resolved.MnemonicFormat),
		Workchain:       int8(resolved.Workchain),
		Network:         network,
		ConnectAttempts: resolved.ConnectAttempts,
		ConnectDelay:    time.Duration(resolved.ConnectDelaySeconds) * time.Second,
	}, opts...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, wallet: wp}
	a.closers = append(a.closers, func() error {
		closeWallet()
		return nil
	})

	agentOpts, err := providerOptions(cfg.Agent.Providers, defs.Explorers())
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	agentOpts = append(agentOpts, agent.WithLogger(logger.Named("agent")), agent.WithAuditLogger(logger.Audit()))
	a.agent = agent.New(wp, agentOpts...)

	logger.L().Info("agent ready",
		slog.String("network", wp.Network().String()),
		slog.String("address", wp.Address()),
		slog.Any("providers", cfg.Agent.Providers))
	return a, nil
}

// providerOptions maps provider names from the configuration onto agent
// registrations. Every provider gets its own registry.
func providerOptions(names []string, explorers map[string]string) ([]agent.Option, error) {
	opts := make([]agent.Option, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case "wallet":
			p, err := walletaction.NewProvider(action.WithRegistry(action.NewRegistry()))
			if err != nil {
				return nil, err
			}
			opts = append(opts, agent.WithProvider(p, agent.CapabilityWallet))
		case "utility":
			p, err := utilaction.NewProvider(explorers, action.WithRegistry(action.NewRegistry()))
			if err != nil {
				return nil, err
			}
			opts = append(opts, agent.WithProvider(p))
		default:
			return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("unknown action provider %q", raw),
				xerrors.WithMetadata("field", "agent.providers"))
		}
	}
	return opts, nil
}

// taskBackends is the store and queue pair selected by the configuration.
type taskBackends struct {
	store task.Store
	queue task.Queue
}

func (b taskBackends) Close() error {
	var err error
	if b.queue != nil {
		err = errors.Join(err, b.queue.Close())
	}
	if b.store != nil {
		err = errors.Join(err, b.store.Close())
	}
	return err
}

func buildTaskBackends(ctx context.Context, cfg *config.Config) (taskBackends, error) {
	var backends taskBackends

	switch strings.ToLower(cfg.Storage.TaskStore.Driver) {
	case "mysql":
		sc := cfg.Storage.TaskStore
		store, err := task.NewMySQLStore(ctx, storage.Config{
			DSN:             sc.ResolveDSN(),
			MaxOpenConns:    sc.MaxOpenConns,
			MaxIdleConns:    sc.MaxIdleConns,
			ConnMaxLifetime: time.Duration(sc.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(sc.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return backends, err
		}
		backends.store = store
	default:
		backends.store = task.NewMemoryStore()
	}

	qc := cfg.TaskQueue
	switch strings.ToLower(qc.Driver) {
	case "redis":
		queue, err := task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   qc.Redis.Address,
			Password:  qc.Redis.ResolvePassword(),
			DB:        qc.Redis.DB,
			Queue:     qc.Redis.Queue,
			BlockWait: time.Duration(qc.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			_ = backends.Close()
			return taskBackends{}, err
		}
		backends.queue = queue
	case "rabbitmq":
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      qc.RabbitMQ.ResolveURL(),
			Queue:    qc.RabbitMQ.Queue,
			Prefetch: qc.RabbitMQ.Prefetch,
			Durable:  qc.RabbitMQ.Durable,
		})
		if err != nil {
			_ = backends.Close()
			return taskBackends{}, err
		}
		backends.queue = queue
	default:
		backends.queue = task.NewMemoryQueue(qc.Buffer)
	}
	return backends, nil
}

// buildAlerting always logs alerts and adds the webhook when one is configured.
func buildAlerting(cfg config.AlertingConfig) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alerting")}}
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(url, time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	return alerting.NewFanout(notifiers...)
}
