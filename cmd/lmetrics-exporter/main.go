// Command lmetrics-exporter loads a YAML rule configuration, tails the
// configured log files, evaluates matching lines against embedded Lua rule
// scripts, and exposes the resulting metrics over HTTP in Prometheus
// exposition format.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lmetrics/exporter/internal/config"
	"github.com/lmetrics/exporter/internal/exporter"
	"github.com/lmetrics/exporter/internal/httpserver"
)

func main() {
	host := flag.String("host", "localhost", "address to bind the HTTP server to")
	port := flag.Int("port", 8000, "port to bind the HTTP server to")
	logLevel := flag.String("log-level", "warning", "minimum log level: debug, info, warning, error")
	processStats := flag.Bool("process-stats", false, "also export Go process-level metrics (open fds, rss, gc)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: lmetrics-exporter [flags] <config-file>")
		os.Exit(1)
	}
	configPath := flag.Arg(0)

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmetrics-exporter: %v\n", err)
		os.Exit(1)
	}

	engine, err := exporter.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmetrics-exporter: %v\n", err)
		os.Exit(1)
	}

	if *processStats {
		engine.Metrics.Prometheus().MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engine.Metrics.Prometheus().MustRegister(collectors.NewGoCollector())
	}

	if err := engine.Supervisor.StartAll(); err != nil {
		fmt.Fprintf(os.Stderr, "lmetrics-exporter: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	srv := httpserver.New(addr, engine.Metrics.Prometheus())

	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	engine.Supervisor.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	logger.Info("lmetrics-exporter exited cleanly")
}

// newLogger constructs a *slog.Logger writing structured log records to
// stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
