package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"obesityserve/config"
	"obesityserve/db"
	qhttp "obesityserve/http"
	"obesityserve/inference"
	"obesityserve/logging"
	"obesityserve/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config and logger
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 2. Model. A missing or broken artifact leaves the service up but unready.
	registry := inference.NewRegistry(cfg.Model.Path, logger.Named("model"))
	if err := registry.Load(); err != nil {
		logger.Error("model not loaded, predictions will be rejected until it is", zap.Error(err))
	}

	// 3. Sinks and observers
	hub := monitoring.NewHub(cfg.HTTP.AllowedOrigins, logger.Named("feed"))
	metrics := monitoring.NewMetrics(registry.Ready)
	sinks := []inference.Sink{hub}

	var store *db.Store
	if cfg.Database.Enabled {
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
		logger.Info("prediction log enabled", zap.String("path", cfg.Database.Path))
	}

	service, err := inference.NewService(registry, inference.Options{
		CacheSize: cfg.Cache.Size,
		Sinks:     sinks,
		Observer:  metrics,
		Logger:    logger.Named("inference"),
	})
	if err != nil {
		return err
	}

	// 4. HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, qhttp.Deps{
		Service: service,
		Store:   store,
		Hub:     hub,
		Metrics: metrics,
		Logger:  logger.Named("http"),
	})

	// 5. Run until a signal arrives or a component fails
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	if cfg.Model.Watch {
		watcher := inference.NewWatcher(registry, cfg.Model.Debounce, logger.Named("watcher"))
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logger.Warn("model hot reload disabled", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", zap.Error(err))
		return err
	}
	logger.Info("exiting")
	return nil
}
