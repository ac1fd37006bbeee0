package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"voicecard/internal/app"
	"voicecard/internal/config"
	httpserver "voicecard/internal/http"
	"voicecard/internal/logging"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Production: cfg.IsProduction(),
		Output:     os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		log.Fatalf("failed to initialise: %v", err)
	}
	defer a.Close()

	if err := a.Media.Available(); err != nil {
		logger.Warn("media processing unavailable, uploads will fail", "error", err)
	}

	srv, err := httpserver.NewServer(a)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}
