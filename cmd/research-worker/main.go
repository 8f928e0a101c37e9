// Command research-worker runs the Research Worker loop: it claims one
// un-researched validated company at a time, invokes the Agent for
// facts/signals/confidence, and advances each run to contact_discovery once
// its research queue drains.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/leadpipe/pkg/agentgateway"
	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/heartbeat"
	"github.com/codeready-toolchain/leadpipe/pkg/research"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(getEnv("CONFIG_FILE", ""))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	dbCfg, err := storage.LoadConfigFromEnv()
	if err != nil {
		slog.Error("failed to load database configuration", "error", err)
		os.Exit(1)
	}
	store, err := storage.New(ctx, dbCfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	agent := agentgateway.NewAnthropicAgent(agentgateway.AnthropicConfig{
		APIKey:    os.Getenv(cfg.Anthropic.APIKeyEnv),
		Model:     anthropic.Model(cfg.Anthropic.Model),
		MaxTokens: cfg.Anthropic.MaxTokens,
	})

	workerID := "research-" + uuid.NewString()
	beater := heartbeat.NewBeater(store, workerID, "research", cfg.Worker.HeartbeatInterval)
	go beater.Start(ctx)
	defer beater.Stop(context.Background())

	worker := research.NewWorker(store, agent, cfg.Worker, beater, workerID)
	slog.Info("research worker starting", "worker_id", workerID)
	worker.Run(ctx)
	slog.Info("research worker stopped")
}
