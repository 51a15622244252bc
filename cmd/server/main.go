// riskgate - fraud-risk admission control in front of payment services
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mbd888/riskgate/internal/config"
	"github.com/mbd888/riskgate/internal/logging"
	"github.com/mbd888/riskgate/internal/server"
	"github.com/mbd888/riskgate/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logging.New(cfg.LogLevel, cfg.LogFormat).Error("riskgate exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger, logFile := logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, logging.FileOptions{Path: cfg.LogFile})
	defer logFile.Close()

	logger.Info("starting riskgate",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return srv.Run(ctx)
}
