package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/menta2k/magickplan/internal/app"
	"github.com/menta2k/magickplan/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.Default().Log.NewLogger().Fatalf("failed to load config: %v", err)
	}
	log := cfg.Log.NewLogger()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	log.WithField("backend", cfg.Detection.Backend).Info("magickplan server starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
	log.Info("magickplan server stopped")
}
