// Command discovery-worker runs the Discovery Worker loop: it claims runs in
// stage discovery, fans Agent calls out across regions, and advances each
// run to research once companies_ready meets its target_quantity.
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
	"github.com/codeready-toolchain/leadpipe/pkg/catalog"
	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/discovery"
	"github.com/codeready-toolchain/leadpipe/pkg/heartbeat"
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
	cat := catalog.NewStaticCatalog(catalog.DefaultEntries)

	workerID := "discovery-" + uuid.NewString()
	beater := heartbeat.NewBeater(store, workerID, "discovery", cfg.Worker.HeartbeatInterval)
	go beater.Start(ctx)
	defer beater.Stop(context.Background())

	worker := discovery.NewWorker(store, agent, cat, cfg.Worker, beater, workerID)
	slog.Info("discovery worker starting", "worker_id", workerID)
	worker.Run(ctx)
	slog.Info("discovery worker stopped")
}
