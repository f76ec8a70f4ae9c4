package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"memorial/internal/config"
	"memorial/internal/listener"
	"memorial/internal/logging"
	"memorial/internal/pipeline"
	"memorial/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	p, err := pipeline.NewParser(cfg, "")
	must(err)
	svc, err := listener.NewService(db, cfg, pipeline.NewProcessingService(db, cfg, p, logger), logger)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
