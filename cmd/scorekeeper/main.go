// Command scorekeeper scores submitted answers with LLM providers and serves
// feedback and leaderboard queries.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ahrav/go-scorekeeper/infrastructure/logging"
	"github.com/ahrav/go-scorekeeper/internal/application"
)

func main() {
	configPath := flag.String("config", "scorekeeper.yaml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := application.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger.With(zap.String("service", cfg.Service.Name))); err != nil {
		logger.Error("scorekeeper stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
