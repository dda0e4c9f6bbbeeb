package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/combat-engine/internal/app"
	"github.com/jwebster45206/combat-engine/internal/config"
	"github.com/jwebster45206/combat-engine/internal/handlers"
	"github.com/jwebster45206/combat-engine/internal/logger"
	"github.com/jwebster45206/combat-engine/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Combat Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"match_types", cfg.MatchTypes,
		"gs_tolerance", cfg.GSTolerance,
		"shadow_timeout", cfg.ShadowTimeout)

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	a, err := app.New(startCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connections established successfully")

	mux := http.NewServeMux()
	mux.Handle("GET /health", handlers.NewHealthHandler(a.HealthComponents(), log).WithQueues(a.Matchmaker))
	handlers.NewArenaHandler(a.Matchmaker, log).Register(mux)
	handlers.NewCombatHandler(a.Runtime, log).Register(mux)
	handlers.NewEventsHandler(a.Broadcaster, log).Register(mux)

	handler := middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Throttle(a.Locks, cfg.RateLimitTick, log),
	)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream stays open for the whole fight.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := a.Close(); err != nil {
		log.Error("Error closing storage connections", "error", err)
	}

	log.Info("Server exited")
}
