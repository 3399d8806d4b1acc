// Package main implements the entry point for the cubestream server.
// Cubestream streams astronomical image cubes to viewer clients over a
// websocket protocol: per-connection sessions, tiled raster data,
// histograms, spectral profiles, and cancellable cube computations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/c360/cubestream/animation"
	"github.com/c360/cubestream/config"
	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/dispatch"
	"github.com/c360/cubestream/gateway/ws"
	"github.com/c360/cubestream/health"
	"github.com/c360/cubestream/metric"
	"github.com/c360/cubestream/natsclient"
	"github.com/c360/cubestream/pkg/retry"
	"github.com/c360/cubestream/session"
	"github.com/c360/cubestream/sessionstore"
	"github.com/c360/cubestream/streammux"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cubestream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting cubestream",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	monitor := health.NewMonitor()

	store, natsClient, err := setupSnapshotStore(ctx, cfg, monitor)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() { _ = natsClient.Close(ctx) }()
	}

	metricsRegistry := metric.NewMetricsRegistry()
	metricsServer, err := setupMetricsServer(cfg, metricsRegistry)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() { _ = metricsServer.Stop() }()
	}

	srv, err := buildServer(cfg, store, metricsRegistry, monitor, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("cubestream started", "addr", srv.Addr(), "data_root", cfg.Data.Root)

	return waitForShutdown(ctx, srv, cliCfg.ShutdownTimeout)
}

// setupSnapshotStore picks the session snapshot backend. With NATS
// disabled snapshots live in memory and do not survive restarts.
func setupSnapshotStore(
	ctx context.Context,
	cfg *config.Config,
	monitor *health.Monitor,
) (dispatch.SnapshotStore, *natsclient.Client, error) {
	if !cfg.NATS.Enabled {
		slog.Info("Session snapshots held in memory")
		return sessionstore.NewMemory(), nil, nil
	}

	opts := []natsclient.ClientOption{}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	opts = append(opts, natsclient.WithName(appName))

	client, err := natsclient.NewClient(cfg.NATS.URLs[0], opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATS.URLs[0])
	if err := retry.Do(ctx, retry.Quick(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	store, err := sessionstore.NewStore(client)
	if err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}

	monitor.UpdateHealthy("nats", "connected")
	client.OnHealthChange(func(healthy bool) {
		if healthy {
			monitor.UpdateHealthy("nats", "connected")
		} else {
			monitor.UpdateUnhealthy("nats", "connection lost")
		}
	})

	return store, client, nil
}

func setupMetricsServer(cfg *config.Config, registry *metric.MetricsRegistry) (*metric.Server, error) {
	if cfg.Server.MetricsAddr == "" {
		return nil, nil
	}
	_, portStr, err := net.SplitHostPort(cfg.Server.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics_addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("metrics_addr port: %w", err)
	}

	srv := metric.NewServer(port, "/metrics", registry)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	slog.Info("Metrics server listening", "addr", srv.Address())
	return srv, nil
}

func buildServer(
	cfg *config.Config,
	store dispatch.SnapshotStore,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*ws.Server, error) {
	metrics := metricsRegistry.CoreMetrics()

	// Cube pixel data is generated in process; names under the data root
	// deterministically seed the cubes they open.
	opener := session.SyntheticOpener(cube.Shape{
		Width:    512,
		Height:   512,
		Channels: 64,
		Stokes:   1,
	})
	registry := session.NewRegistry(opener, logger, metrics)

	return ws.NewServer(
		ws.Config{
			ListenAddr:     cfg.Server.ListenAddr,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			MaxMessageSize: cfg.Server.MaxMessageSize,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			TLS:            cfg.Server.TLS,
		},
		ws.Deps{
			Registry: registry,
			Store:    store,
			Opener:   opener,
			Stream: streammux.Config{
				ControlCapacity:  cfg.Stream.ControlCapacity,
				DataCapacity:     cfg.Stream.DataCapacity,
				ProgressCapacity: cfg.Stream.ProgressCapacity,
			},
			JobWorkers: cfg.Jobs.Workers,
			JobQueue:   cfg.Jobs.QueueSize,
			Animation: animation.Config{
				WindowSize:       cfg.Animation.WindowSize,
				DefaultFrameRate: cfg.Animation.DefaultFrameRate,
			},
			Logger:  logger,
			Metrics: metrics,
			Health:  monitor,
		})
}

func waitForShutdown(ctx context.Context, srv *ws.Server, timeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := srv.Stop(timeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("cubestream shutdown complete")
	return nil
}

// loadConfig loads configuration from the given path, or the compiled-in
// defaults plus environment overrides when no path is set.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	if path == "" {
		return loader.Load()
	}
	return loader.LoadFile(path)
}
