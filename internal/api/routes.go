package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sentinel-labs/network-behavior-engine/internal/alerting"
	"github.com/sentinel-labs/network-behavior-engine/internal/analyzer"
	"github.com/sentinel-labs/network-behavior-engine/internal/db"
	"github.com/sentinel-labs/network-behavior-engine/internal/jobs"
	"github.com/sentinel-labs/network-behavior-engine/internal/metrics"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

type APIHandler struct {
	dbStore     *db.PostgresStore
	wsHub       *Hub
	alerts      *alerting.Manager
	batchRunner *jobs.Runner
	baseConfig  analyzer.Config
}

func SetupRouter(dbStore *db.PostgresStore, wsHub *Hub, alerts *alerting.Manager, batchRunner *jobs.Runner, baseConfig analyzer.Config) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://sentinel.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	limiter := NewRateLimiter(60, 20)

	handler := &APIHandler{
		dbStore:     dbStore,
		wsHub:       wsHub,
		alerts:      alerts,
		batchRunner: batchRunner,
		baseConfig:  baseConfig,
	}

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.POST("/network/analyze", handler.handleAnalyzeNetwork)
		api.GET("/analyses", handler.handleGetAnalyses)
		api.GET("/analyses/:runId", handler.handleGetAnalysis)
		api.POST("/cluster/compare", handler.handleComparePartitions)
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		// Batch snapshot analysis
		api.POST("/batch", handler.handleStartBatch)
		api.GET("/batch/progress", handler.handleBatchProgress)

		// Alert surfaces
		api.GET("/alerts/recent", handler.handleRecentAlerts)
		api.GET("/alerts/webhooks", handler.handleListWebhooks)
		api.POST("/alerts/webhooks", handler.handleRegisterWebhook)
		api.DELETE("/alerts/webhooks/:name", handler.handleRemoveWebhook)
	}

	// Serve static dashboard
	r.Static("/dashboard", "./public")

	return r
}

// analyzeRequest is the body of POST /api/v1/network/analyze.
// centerAddress/maxDepth only describe how the edges were scoped upstream;
// the engine does not re-filter by depth.
type analyzeRequest struct {
	Edges         []models.TransactionEdge `json:"edges"`
	CenterAddress string                   `json:"centerAddress,omitempty"`
	MaxDepth      int                      `json:"maxDepth,omitempty"`
	Config        *analyzer.Config         `json:"config,omitempty"` // full override; omit for server defaults
}

// handleAnalyzeNetwork runs the full cluster analysis pipeline over the
// submitted edge list, persists the run when a database is connected, and
// emits alerts for HIGH/CRITICAL findings.
func (h *APIHandler) handleAnalyzeNetwork(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cfg := h.baseConfig
	if req.Config != nil {
		cfg = *req.Config
	}

	result, err := analyzer.AnalyzeNetwork(req.Edges, cfg)
	if err != nil {
		// Only configuration errors reject the whole call.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()

	if h.dbStore != nil {
		if err := h.dbStore.SaveAnalysis(c.Request.Context(), runID, req.CenterAddress, req.MaxDepth, result); err != nil {
			log.Printf("Failed to save analysis result to DB: %v", err)
		}
	}

	if h.alerts != nil {
		h.alerts.EmitFromResult(runID, result)
	}

	c.JSON(http.StatusOK, gin.H{
		"runId":    runID,
		"analysis": result,
	})
}

// handleGetAnalyses lists persisted runs with pagination.
func (h *APIHandler) handleGetAnalyses(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	analyses, totalCount, err := h.dbStore.GetRecentAnalyses(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analysis history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       analyses,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handleGetAnalysis returns one persisted run's full result.
func (h *APIHandler) handleGetAnalysis(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	result, err := h.dbStore.GetAnalysis(c.Request.Context(), c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis run not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleComparePartitions measures agreement between two cluster labelings
// of the same address set (e.g. reruns, or a run against ground truth).
func (h *APIHandler) handleComparePartitions(c *gin.Context) {
	var req struct {
		PartitionA map[string]int `json:"partitionA"`
		PartitionB map[string]int `json:"partitionB"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"adjustedRandIndex":      metrics.AdjustedRandIndex(req.PartitionA, req.PartitionB),
		"variationOfInformation": metrics.VariationOfInformation(req.PartitionA, req.PartitionB),
	})
}

// handleStartBatch launches a background analysis over multiple snapshots.
func (h *APIHandler) handleStartBatch(c *gin.Context) {
	if h.batchRunner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch runner not initialized"})
		return
	}

	var req struct {
		Snapshots []jobs.Snapshot `json:"snapshots"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {snapshots: [...]}"})
		return
	}
	if len(req.Snapshots) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No snapshots provided"})
		return
	}

	for i := range req.Snapshots {
		if req.Snapshots[i].SnapshotID == "" {
			req.Snapshots[i].SnapshotID = uuid.NewString()
		}
	}

	// Launch batch in background. The request context dies with this
	// handler, so the batch gets a server-lifetime context instead.
	ctx := context.Background()
	if !h.batchRunner.RunBatch(ctx, req.Snapshots) {
		c.JSON(http.StatusConflict, gin.H{"error": "A batch is already in progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "batch_started",
		"snapshotsTotal": len(req.Snapshots),
	})
}

// handleBatchProgress returns the batch runner's current progress.
func (h *APIHandler) handleBatchProgress(c *gin.Context) {
	if h.batchRunner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch runner not initialized"})
		return
	}
	c.JSON(http.StatusOK, h.batchRunner.GetProgress())
}

// handleRecentAlerts returns the in-memory alert history, newest first.
func (h *APIHandler) handleRecentAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	c.JSON(http.StatusOK, gin.H{"alerts": h.alerts.Recent(limit)})
}

// handleListWebhooks returns the registered webhook endpoints.
func (h *APIHandler) handleListWebhooks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"webhooks": h.alerts.Webhooks()})
}

// handleRegisterWebhook adds a webhook receiver for cluster alerts.
func (h *APIHandler) handleRegisterWebhook(c *gin.Context) {
	var req struct {
		Name         string            `json:"name"`
		URL          string            `json:"url"`
		MinRiskLevel models.RiskLevel  `json:"minRiskLevel"`
		Headers      map[string]string `json:"headers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected: {name, url, minRiskLevel}"})
		return
	}
	if req.MinRiskLevel == "" {
		req.MinRiskLevel = models.RiskHigh
	}

	h.alerts.RegisterWebhook(req.Name, req.URL, req.MinRiskLevel, req.Headers)
	c.JSON(http.StatusOK, gin.H{"status": "registered", "name": req.Name})
}

// handleRemoveWebhook removes a webhook by name.
func (h *APIHandler) handleRemoveWebhook(c *gin.Context) {
	h.alerts.RemoveWebhook(c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// handleHealth returns engine status and capabilities for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "Sentinel Network Behavior Engine v1.0",
		"capabilities": gin.H{
			"dbscan_clustering": true,
			"sybil_detection":   true,
			"wash_trading":      true,
			"cross_cluster":     true,
			"galaxy_view":       true,
			"partition_metrics": true,
			"batch_analysis":    true,
		},
		"dbConnected": h.dbStore != nil,
	})
}
