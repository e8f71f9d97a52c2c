package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/DenzelPenzel/ton-agent/internal/actions/walletaction"
	"github.com/DenzelPenzel/ton-agent/internal/api"
	"github.com/DenzelPenzel/ton-agent/internal/auth"
	"github.com/DenzelPenzel/ton-agent/internal/config"
	"github.com/DenzelPenzel/ton-agent/internal/observability/metrics"
	"github.com/DenzelPenzel/ton-agent/internal/task"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the invocation workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, runtimeDeps{})
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, deps runtimeDeps) error {
	log := logger.Named("serve")

	a, err := buildApp(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close wallet", slog.Any("error", err))
		}
	}()

	backends, err := buildTaskBackends(ctx, cfg)
	if err != nil {
		return err
	}
	invocations := task.NewService(backends.store, backends.queue, cfg.TaskQueue.MaxRetries)
	defer func() {
		if err := invocations.Close(); err != nil {
			log.Warn("failed to close task backends", slog.Any("error", err))
		}
	}()

	authSvc, err := auth.NewService(authConfig(cfg.Auth))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverOpts := []api.Option{
		api.WithAuth(authSvc),
		api.WithTimeouts(
			time.Duration(cfg.Server.ReadTimeoutSeconds)*time.Second,
			time.Duration(cfg.Server.WriteTimeoutSeconds)*time.Second,
		),
	}
	if cfg.Metrics.Enabled {
		m, err := metrics.New()
		if err != nil {
			return err
		}
		m.Track(runCtx, a.agent)
		serverOpts = append(serverOpts, api.WithMetrics(m, cfg.Metrics.Path))
	}

	processor := task.NewProcessor(a.agent, backends.store, backends.queue, backends.queue,
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithAlertDispatcher(buildAlerting(cfg.Alerting)),
		task.WithRetryBackoff(time.Duration(cfg.TaskQueue.RetryBackoffSeconds)*time.Second),
		task.WithInvokeTimeout(time.Duration(cfg.TaskQueue.InvokeTimeoutSeconds)*time.Second),
		task.WithFailureLimit(cfg.TaskQueue.FailureLimit),
		task.WithIdentity(a.wallet.Network().String(), a.wallet.Address()),
		task.WithSerialActions(walletaction.TransferTON, walletaction.EnsureWalletDeployed),
	)

	processorDone := make(chan error, 1)
	go func() { processorDone <- processor.Start(runCtx) }()

	server := api.NewServer(cfg.Server.Address, a.agent, invocations, serverOpts...)
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start(runCtx) }()

	select {
	case err = <-serverDone:
		cancel()
		<-processorDone
	case err = <-processorDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("invocation processor stopped", slog.Any("error", err))
		}
		cancel()
		<-serverDone
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func authConfig(cfg config.AuthConfig) auth.Config {
	out := auth.Config{Enabled: cfg.Enabled}
	for _, k := range cfg.Keys {
		out.Keys = append(out.Keys, auth.Key{
			Name:        k.Name,
			Secret:      k.ResolveKey(),
			Permissions: k.Permissions,
		})
	}
	return out
}
