// Command heartbeat-monitor runs the Heartbeat Monitor: the pipeline's sole
// crash-recovery mechanism. It periodically sweeps for dead workers, releases
// their leases back to the claimable pool, marks them stopped, and purges
// old stopped heartbeat rows.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeready-toolchain/leadpipe/pkg/config"
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

	monitorCfg := heartbeat.MonitorConfig{
		MonitorInterval: cfg.Worker.MonitorInterval,
		DeadThreshold:   cfg.Worker.DeadWorkerThreshold,
		StoppedRetention: heartbeat.DefaultMonitorConfig.StoppedRetention,
	}
	monitor := heartbeat.NewMonitor(store, monitorCfg)

	slog.Info("heartbeat monitor starting")
	monitor.Run(ctx)
	slog.Info("heartbeat monitor stopped")
}
