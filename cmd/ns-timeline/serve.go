package main

import (
	"Go2NetTimeline/internal/api"
	"Go2NetTimeline/internal/archive"
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/logging"
	"Go2NetTimeline/internal/metrics"
	"Go2NetTimeline/internal/model"
	"Go2NetTimeline/internal/probe"
	"Go2NetTimeline/internal/storage"
	"Go2NetTimeline/internal/timeline"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the timeline engine with its HTTP, WebSocket and gRPC endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML configuration")
	return cmd
}

func serve(cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}
	defer store.Close()

	logger.Info("storage opened", zap.String("type", cfg.Storage.Type), zap.String("path", cfg.Storage.Path))

	engine := timeline.New(store, engineOptions(cfg.Timeline, logger, m))
	defer engine.Close()

	if cfg.Archive.Enabled {
		archiver, err := archive.NewClickHouseArchiver(cfg.Archive.ClickHouse, logger)
		if err != nil {
			return err
		}
		worker := archive.NewWorker(archiver, cfg.Archive.QueueSize, cfg.Archive.BatchSize, cfg.Archive.FlushInterval.Std(), logger)
		worker.Start()
		defer worker.Stop()
		engine.Subscribe(worker.Handle)
	}

	if cfg.Events.Enabled {
		publisher, err := probe.NewPublisher(cfg.Events, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		engine.Subscribe(publisher.Handle)
	}

	if cfg.Ingest.Enabled {
		subscriber, err := probe.NewSubscriber(cfg.Ingest, logger)
		if err != nil {
			return err
		}
		defer subscriber.Close()
		if err := subscriber.Start(func(packets []model.RawPacket) {
			engine.AddPackets(packets)
		}); err != nil {
			return err
		}
	}

	hub := api.NewHub(logger)
	defer hub.Stop()
	engine.Subscribe(hub.Handle)

	httpServer := &http.Server{
		Addr:              cfg.API.HTTPListenAddr,
		Handler:           api.NewServer(engine, hub, reg, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := api.NewGRPCServer()
	grpcListener, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.API.GRPCListenAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("gRPC server starting", zap.String("addr", cfg.API.GRPCListenAddr))
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(ctx); shutdownErr != nil {
		logger.Warn("HTTP server forced to shutdown", zap.Error(shutdownErr))
	}
	grpcServer.Shutdown()
	logger.Info("shutdown complete")
	return err
}
