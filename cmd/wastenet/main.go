package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"go.uber.org/zap"

	"wastenet/config"
	"wastenet/logging"
	"wastenet/pipeline"
)

func main() {
	parser := argparse.NewParser("wastenet", "Waste photo classifier training pipeline")
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML configuration file", Default: "config.yaml"})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Override the random seed", Default: -1})
	epochs := parser.Int("", "epochs", &argparse.Options{Help: "Override the epoch limit", Default: 0})
	logLevel := parser.String("", "log-level", &argparse.Options{Help: "Override the log level", Default: ""})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *seed >= 0 {
		cfg.Training.Seed = int64(*seed)
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := pipeline.Run(ctx, cfg, logger)
	if err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("pipeline finished",
		zap.Float64("test_accuracy", result.Report.Accuracy),
		zap.Int("epochs_run", len(result.History.Epochs)),
		zap.String("final_state", result.History.FinalState.String()))
}

// loadConfig falls back to defaults when the default config file is absent,
// but an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "config.yaml" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}
