package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memory-game/api"
	"memory-game/auth"
	"memory-game/config"
	"memory-game/events"
	"memory-game/httpserver"
	"memory-game/loghandler"
	"memory-game/storage"
	"memory-game/table"
	"memory-game/web"
	"memory-game/ws"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stderr, loghandler.ParseLevel(cfg.LogLevel))))

	if envErr != nil {
		slog.Info("no .env file found; using environment variables", "tag", "main")
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "tag", "main", "err", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded", "tag", "main",
		"reveal_delay_ms", cfg.RevealDelayMS, "hide_delay_ms", cfg.HideDelayMS,
		"port", cfg.Port, "max_tables", cfg.MaxTables)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := storage.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open result storage", "tag", "storage", "err", err)
		os.Exit(1)
	}
	if results != nil {
		defer results.Close()
	}

	pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		// Events are best effort; keep serving without them.
		slog.Warn("NATS unavailable, game events disabled", "tag", "events", "err", err)
		pub = events.Nop{}
	}
	defer pub.Close()

	var validator ws.TokenValidator
	if v := auth.NewValidator(cfg.AuthBaseURL); v != nil {
		validator = v
		slog.Info("auth configured", "tag", "auth", "base_url", cfg.AuthBaseURL)
	} else {
		slog.Info("AUTH_BASE_URL is not set; sign-in disabled", "tag", "auth")
	}

	tables := table.NewManager(ctx, cfg, results, pub)

	hub := ws.NewHub(cfg, tables, validator)
	go hub.Run(ctx)

	handler := api.NewHandler(cfg, results, tables, validator)
	router := httpserver.NewRouter(handler, hub.ServeWS, web.Handler(cfg.WebDir))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("memory game server listening", "tag", "main", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "tag", "main", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", "tag", "main")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "tag", "main", "err", err)
	}
	tables.Wait()
}
