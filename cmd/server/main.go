// Package main is the entry point for the LendPal server.
//
// main stays minimal: read configuration, build the logger, hand both to
// internal/server and block until shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/lendpal/internal/config"
	"github.com/sakif/lendpal/internal/logging"
	"github.com/sakif/lendpal/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (overrides "+config.ConfigEnv+")")
	flag.Parse()

	// === 1. CONFIGURATION ===
	// Defaults, then the optional file, then LENDPAL_* variables.
	// Example: LENDPAL_AUTH_JWT_SECRET=$(openssl rand -hex 32)
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger, closer, err := logging.New(cfg.Server, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		closer.Close()
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		closer.Close()
		os.Exit(1)
	}
}
