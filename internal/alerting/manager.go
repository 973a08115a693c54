package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Cluster Alert Manager
//
// Structured alert emission for suspicious cluster findings. Alerts are:
//   1. Broadcast via a WebSocket callback to connected dashboards
//   2. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   3. Kept in a bounded in-memory history for the recent-alerts API
//
// Webhook payloads are plain JSON compatible with Slack/Discord incoming
// webhooks. Each endpoint carries a minimum risk level so low-grade findings
// do not flood paging integrations.

// Alert is one structured cluster finding notification.
type Alert struct {
	ID          string                  `json:"id"`
	Timestamp   time.Time               `json:"timestamp"`
	RiskLevel   models.RiskLevel        `json:"riskLevel"`
	AlertType   string                  `json:"alertType"` // suspicious_cluster/attack_pattern
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	RunID       string                  `json:"runId,omitempty"`
	Cluster     *models.ClusterAnalysis `json:"cluster,omitempty"`
	Pattern     *models.AttackPattern   `json:"pattern,omitempty"`
}

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Enabled      bool              `json:"enabled"`
	Headers      map[string]string `json:"headers,omitempty"`
	MinRiskLevel models.RiskLevel  `json:"minRiskLevel"` // only deliver alerts at or above this level
}

// Manager handles alert emission, history, and webhook delivery.
type Manager struct {
	mu            sync.RWMutex
	webhooks      []WebhookEndpoint
	recentAlerts  []Alert
	maxHistory    int
	httpClient    *http.Client
	alertCallback func(Alert) // WebSocket broadcast callback
}

// NewManager creates an alert manager with the given broadcast callback.
func NewManager(broadcastFn func(Alert)) *Manager {
	return &Manager{
		webhooks:      make([]WebhookEndpoint, 0),
		recentAlerts:  make([]Alert, 0),
		maxHistory:    1000,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		alertCallback: broadcastFn,
	}
}

// RegisterWebhook adds a webhook endpoint.
func (m *Manager) RegisterWebhook(name, url string, minRiskLevel models.RiskLevel, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhooks = append(m.webhooks, WebhookEndpoint{
		Name:         name,
		URL:          url,
		Enabled:      true,
		Headers:      headers,
		MinRiskLevel: minRiskLevel,
	})
	log.Printf("[AlertManager] Registered webhook: %s → %s (min: %s)", name, url, minRiskLevel)
}

// RemoveWebhook removes a webhook by name.
func (m *Manager) RemoveWebhook(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, wh := range m.webhooks {
		if wh.Name == name {
			m.webhooks = append(m.webhooks[:i], m.webhooks[i+1:]...)
			return
		}
	}
}

// Webhooks returns a snapshot of the registered endpoints.
func (m *Manager) Webhooks() []WebhookEndpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WebhookEndpoint, len(m.webhooks))
	copy(out, m.webhooks)
	return out
}

// Emit processes and distributes one alert.
func (m *Manager) Emit(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	m.mu.Lock()
	m.recentAlerts = append(m.recentAlerts, alert)
	if len(m.recentAlerts) > m.maxHistory {
		m.recentAlerts = m.recentAlerts[len(m.recentAlerts)-m.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(m.webhooks))
	copy(webhooks, m.webhooks)
	m.mu.Unlock()

	if m.alertCallback != nil {
		m.alertCallback(alert)
	}

	// Webhook delivery is async and best-effort.
	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		if !alert.RiskLevel.AtLeast(wh.MinRiskLevel) {
			continue
		}
		go m.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: %s", alert.RiskLevel, alert.AlertType, alert.Title)
}

// EmitFromResult raises alerts for every HIGH/CRITICAL cluster and every
// cross-cluster attack pattern in an analysis result.
func (m *Manager) EmitFromResult(runID string, result models.NetworkAnalysisResult) {
	for i := range result.Clusters {
		cluster := result.Clusters[i]
		if !cluster.RiskLevel.AtLeast(models.RiskHigh) {
			continue
		}
		m.Emit(Alert{
			RiskLevel: cluster.RiskLevel,
			AlertType: "suspicious_cluster",
			Title:     fmt.Sprintf("%s detected (%d addresses)", cluster.ClusterType, cluster.Size),
			Description: fmt.Sprintf("Cluster %d scored %d/100: funding concentration %.2f, activity correlation %.2f",
				cluster.ClusterID, cluster.RiskScore, cluster.FundingAnalysis.FundingConcentration,
				cluster.TimingAnalysis.ActivityCorrelation),
			RunID:   runID,
			Cluster: &cluster,
		})
	}

	for i := range result.AttackPatterns {
		pattern := result.AttackPatterns[i]
		m.Emit(Alert{
			RiskLevel:   pattern.RiskLevel,
			AlertType:   "attack_pattern",
			Title:       pattern.PatternType,
			Description: pattern.Description + ": " + pattern.Evidence,
			RunID:       runID,
			Pattern:     &pattern,
		})
	}
}

// Recent returns the most recent alerts, newest first.
func (m *Manager) Recent(limit int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.recentAlerts) {
		limit = len(m.recentAlerts)
	}

	start := len(m.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = m.recentAlerts[start+limit-1-i]
	}
	return result
}

// sendWebhook delivers one alert to one endpoint.
func (m *Manager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}
