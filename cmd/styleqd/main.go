// Command styleqd serves computed-style queries over HTTP.
//
// Usage:
//
//	styleqd -config styleq.yaml
//	styleqd -listen :8167            # simulated mode, no config file
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/styleq/engine"
	"github.com/hazyhaar/styleq/server"
)

func main() {
	configPath := flag.String("config", "", "path to styleq.yaml config file")
	listenAddr := flag.String("listen", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *listenAddr); err != nil {
		logger.Error("styleqd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, listenAddr string) error {
	cfg := engine.Config{}
	if configPath != "" {
		loaded, err := engine.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = engine.DefaultListenAddr
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(eng, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("styleqd: listening", "addr", cfg.ListenAddr, "mode", eng.Mode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("styleqd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
