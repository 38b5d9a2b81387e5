package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/channelcast/channelcast/internal/config"
	"github.com/channelcast/channelcast/internal/logger"
	"github.com/channelcast/channelcast/internal/orchestrator"
)

func main() {
	fmt.Println("=================================")
	fmt.Println("  ChannelCast Linear Streamer")
	fmt.Println("=================================")

	configPath := os.Getenv("CHANNELCAST_CONFIG")
	if configPath == "" {
		configPath = "./channelcast.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Default()

	orch, err := orchestrator.New(cfg, log)
	if err != nil {
		log.Error("fatal startup error", "error", err)
		os.Exit(2)
	}

	if err := orch.Bootstrap(); err != nil {
		log.Error("fatal startup error", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := orch.WatchConfig(ctx, configPath); err != nil {
		log.Warn("config watcher not started", "error", err)
	}

	go func() {
		if err := orch.Run(ctx); err != nil {
			log.Error("orchestrator run loop exited with error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      orch.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down gracefully")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", "error", err)
		}

		orch.Shutdown()
		cancel()
	}()

	log.Info("starting playback surface", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http server error", "error", err)
		os.Exit(2)
	}

	<-ctx.Done()
	log.Info("shutdown complete")
}
