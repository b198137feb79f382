// Command puppeteerd is the puppeteer server daemon. It hosts the task
// board, runs agent loops on request and serves the REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/puppeteer/config"
	"github.com/GoCodeAlone/puppeteer/internal/version"
)

var configPath = flag.String("config", "puppeteer.yaml", "path to YAML config file")

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting puppeteerd",
		"version", version.Version,
		"commit", version.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	fmt.Printf("puppeteer server running on %s\n", cfg.Server.Addr)

	runErr := a.run(ctx)
	a.close()
	if runErr != nil {
		logger.Error("server stopped", slog.Any("err", runErr))
		os.Exit(1)
	}
	fmt.Println("Shutdown complete")
}

// loadConfig reads path when it exists. A missing file at the default path
// means defaults plus environment.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == "puppeteer.yaml" {
		cfg = config.DefaultConfig()
		cfg.ApplyEnv(os.Getenv)
		return cfg, cfg.Validate()
	}
	return cfg, err
}
