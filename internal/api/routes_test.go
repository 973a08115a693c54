package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-labs/network-behavior-engine/internal/alerting"
	"github.com/sentinel-labs/network-behavior-engine/internal/analyzer"
	"github.com/sentinel-labs/network-behavior-engine/internal/jobs"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

func newTestRouter(t *testing.T, runner *jobs.Runner) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	go hub.Run()
	alerts := alerting.NewManager(nil)

	router := SetupRouter(nil, hub, alerts, runner, analyzer.DefaultConfig())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// TestStartBatch_SurvivesRequestCompletion covers the batch launch contract:
// the request context dies with the handler, so a batch started over HTTP
// must keep running after the response is sent.
func TestStartBatch_SurvivesRequestCompletion(t *testing.T) {
	sink := func(ctx context.Context, runID string, snapshot jobs.Snapshot, result models.NetworkAnalysisResult) {
		time.Sleep(10 * time.Millisecond) // outlive the HTTP request
	}

	runner := jobs.NewRunner(analyzer.DefaultConfig(), sink)
	server := newTestRouter(t, runner)

	snapshots := make([]jobs.Snapshot, 10)
	for i := range snapshots {
		snapshots[i] = jobs.Snapshot{
			Edges: []models.TransactionEdge{
				{FromAddress: "0xa", ToAddress: "0xb", Value: 1e18, Timestamp: "2024-05-01T12:00:00Z"},
			},
		}
	}
	body, err := json.Marshal(map[string]any{"snapshots": snapshots})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	resp, err := http.Post(server.URL+"/api/v1/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /batch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var started struct {
		Status         string `json:"status"`
		SnapshotsTotal int    `json:"snapshotsTotal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if started.Status != "batch_started" || started.SnapshotsTotal != 10 {
		t.Fatalf("Unexpected response: %+v", started)
	}

	// The response is already delivered; the batch must still drain fully.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p := runner.GetProgress()
		if p.SnapshotsProcessed == p.SnapshotsTotal && !p.IsRunning {
			return
		}
		if !p.IsRunning && p.SnapshotsProcessed < p.SnapshotsTotal {
			t.Fatalf("Batch stopped after the response with %d/%d snapshots processed",
				p.SnapshotsProcessed, p.SnapshotsTotal)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Batch did not finish in time")
}

func TestStartBatch_RejectsEmptyRequest(t *testing.T) {
	runner := jobs.NewRunner(analyzer.DefaultConfig(), nil)
	server := newTestRouter(t, runner)

	resp, err := http.Post(server.URL+"/api/v1/batch", "application/json",
		bytes.NewReader([]byte(`{"snapshots": []}`)))
	if err != nil {
		t.Fatalf("POST /batch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty snapshot list, got %d", resp.StatusCode)
	}
}
