package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/app"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/exec"
	httpx "github.com/bhageshghuge/Collaborative-Coding-Platform/internal/http"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/room"
	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Room state + execution sandbox
	registry := room.NewRegistry()
	sandbox := exec.New(cfg.ExecTimeout)

	// WebSocket hub (session gateway)
	hub := ws.NewHub(logger, cfg, registry, sandbox)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
