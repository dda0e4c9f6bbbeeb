package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/combat-engine/internal/app"
	"github.com/jwebster45206/combat-engine/internal/config"
	"github.com/jwebster45206/combat-engine/internal/logger"
	"github.com/jwebster45206/combat-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Combat Engine Worker",
		"environment", cfg.Environment,
		"match_types", cfg.MatchTypes,
		"match_tick", cfg.MatchTick)

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	a, err := app.New(startCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Error closing storage connections", "error", err)
		}
	}()

	w := worker.New(a.Matchmaker, cfg.MatchTick, log, cfg.WorkerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, scanning queues...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not finish its scan in time")
	}

	log.Info("Worker exited")
}
