package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pos-relay-server/cluster"
	"pos-relay-server/config"
	"pos-relay-server/hub"
	"pos-relay-server/metrics"
	"pos-relay-server/protocol"
	"pos-relay-server/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	recorder := metrics.New()
	hubOpts := []hub.Option{hub.WithMetrics(recorder)}

	var bridge *cluster.Bridge
	if cfg.RedisURL != "" {
		client, err := cluster.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		bridge = cluster.New(client, cfg.RedisChannel, cluster.WithMetrics(recorder))
		hubOpts = append(hubOpts, hub.WithForwarder(bridge))
	}

	broadcaster := hub.New(hubOpts...)
	handler := protocol.NewHandler(broadcaster, protocol.WithMetrics(recorder))
	srv := server.New(cfg, broadcaster, handler, server.WithMetricsHandler(recorder.Handler()))

	if err := srv.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if bridge != nil {
		g.Go(func() error {
			return bridge.Run(gctx, broadcaster.Deliver)
		})
	}

	return g.Wait()
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
