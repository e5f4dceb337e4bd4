// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/trading-core/internal/bot"
	"github.com/rovshanmuradov/trading-core/internal/config"
	"github.com/rovshanmuradov/trading-core/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     filepath.Join(cfg.LogDir, "trading-core.log"),
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting trading core", zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := bot.NewRunner(cfg, log.WithComponent("core"))
	if err != nil {
		log.Fatal("Failed to initialize trading core", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Trading core execution error", zap.Error(err))
	}
}
