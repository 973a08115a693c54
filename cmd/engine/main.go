package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/sentinel-labs/network-behavior-engine/internal/alerting"
	"github.com/sentinel-labs/network-behavior-engine/internal/analyzer"
	"github.com/sentinel-labs/network-behavior-engine/internal/api"
	"github.com/sentinel-labs/network-behavior-engine/internal/db"
	"github.com/sentinel-labs/network-behavior-engine/internal/jobs"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

func main() {
	log.Println("Starting Sentinel Network Behavior Engine (Microservice: network-behavior-analytics)...")

	// ─── Environment Configuration ──────────────────────────────────────
	// DATABASE_URL is optional: without it the engine runs in stateless
	// mode (no run history, alerts in-memory only). Analyzer thresholds
	// can be tuned per-deployment via NBE_* variables.
	// ────────────────────────────────────────────────────────────────────

	var dbStore *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		conn, err := db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting analysis runs. Error: %v", err)
		} else {
			dbStore = conn
			defer dbStore.Close()
			if err := dbStore.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set, running stateless (no run history)")
	}

	cfg := analyzer.DefaultConfig()
	cfg.MinClusterSize = getEnvInt("NBE_MIN_CLUSTER_SIZE", cfg.MinClusterSize)
	cfg.SybilSizeThreshold = getEnvInt("NBE_SYBIL_SIZE_THRESHOLD", cfg.SybilSizeThreshold)
	cfg.CrossClusterThreshold = getEnvInt("NBE_CROSS_CLUSTER_THRESHOLD", cfg.CrossClusterThreshold)
	cfg.CoordinationWindowMinutes = getEnvInt("NBE_COORDINATION_WINDOW_MINUTES", cfg.CoordinationWindowMinutes)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// WebSocket hub for dashboard streaming
	wsHub := api.NewHub()
	go wsHub.Run()

	// Alert manager broadcasting through the hub
	alerts := alerting.NewManager(api.BroadcastClusterAlert(wsHub))
	if webhookURL := os.Getenv("ALERT_WEBHOOK_URL"); webhookURL != "" {
		alerts.RegisterWebhook("default", webhookURL, models.RiskHigh, nil)
	}

	// Batch runner persists each completed snapshot and raises alerts
	batchRunner := jobs.NewRunner(cfg, func(ctx context.Context, runID string, snapshot jobs.Snapshot, result models.NetworkAnalysisResult) {
		if dbStore != nil {
			if err := dbStore.SaveAnalysis(ctx, runID, snapshot.CenterAddress, snapshot.MaxDepth, result); err != nil {
				log.Printf("Failed to persist batch analysis %s: %v", runID, err)
			}
		}
		alerts.EmitFromResult(runID, result)
	})

	r := api.SetupRouter(dbStore, wsHub, alerts, batchRunner, cfg)

	port := getEnvOrDefault("PORT", "5340")

	log.Printf("Engine running on :%s (API Node: network-behavior-analytics)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt parses an integer env var, falling back on absence or bad input.
func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using default %d", key, val, fallback)
		return fallback
	}
	return n
}
