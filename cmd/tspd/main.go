package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/tspd"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/config"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/logger"
)

func main() {
	var configPath string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to config file (built-in defaults when empty)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if cfg.LogFormat == "text" {
		logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))
	} else {
		logger.SetDefault(logger.New(cfg.LogLevel, os.Stdout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := tspd.NewRunStore()
	hub := tspd.NewStreamHub()
	executor := tspd.NewRunExecutor(store, hub, tspd.NewNotifier())

	// WriteTimeout stays unset: snapshot streams hold their connections
	// open for the lifetime of a run.
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           tspd.NewHTTPServer(store, executor, hub, cfg).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stopping runs first closes their snapshot streams so Shutdown can
	// drain the remaining requests.
	executor.StopAll()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
