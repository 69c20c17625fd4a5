// Command netwatch is the telemetry collector daemon: it ingests syslog
// traffic, polls the router and the host event log, and loads everything
// into the partitioned store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/skovlund/netwatch/internal/collector"
	"github.com/skovlund/netwatch/internal/config"
	"github.com/skovlund/netwatch/internal/logging"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "path to a YAML config file")
		logLevel    = pflag.String("log-level", "", "override log level (debug, info, warn, error)")
		showVersion = pflag.BoolP("version", "v", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Println("netwatch", config.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	closer, err := logging.Init(cfg.Log.File, cfg.Log.MaxBytes, logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	slog.Info("netwatch starting", "version", config.Version, "listen", cfg.Listen.Addr)

	col, err := collector.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := col.Run(ctx); err != nil {
		slog.Error("collector error", "error", err)
		os.Exit(1)
	}
}
