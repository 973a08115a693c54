package analyzer

import (
	"fmt"

	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Network-Wide Metrics & Galaxy View
//
// Pure data-shaping: aggregates per-cluster verdicts into network-level
// statistics and the cluster-level node list the force-directed "galaxy"
// rendering consumes. One node per cluster, never per address.

// ComputeNetworkMetrics aggregates cluster coverage and value flow.
func ComputeNetworkMetrics(edges []models.TransactionEdge, clusters map[int][]string) models.NetworkMetrics {
	addresses := make(map[string]bool)
	valueFlow := 0.0
	for _, tx := range edges {
		addresses[tx.FromAddress] = true
		addresses[tx.ToAddress] = true
		valueFlow += tx.Value
	}

	clustered := 0
	for _, members := range clusters {
		clustered += len(members)
	}

	denom := len(addresses)
	if denom < 1 {
		denom = 1
	}

	avgSize := 0.0
	if len(clusters) > 0 {
		avgSize = float64(clustered) / float64(len(clusters))
	}

	return models.NetworkMetrics{
		ClusteringCoverage: float64(clustered) / float64(denom),
		AverageClusterSize: avgSize,
		TotalValueFlow:     valueFlow / models.WeiPerEth,
	}
}

// BuildGalaxyView shapes cluster verdicts for visualization.
func BuildGalaxyView(analyses []models.ClusterAnalysis) models.GalaxyView {
	view := models.GalaxyView{
		Nodes:       make([]models.GalaxyNode, 0, len(analyses)),
		ClusterMeta: make(map[string]models.ClusterAnalysis, len(analyses)),
	}

	for _, analysis := range analyses {
		nodeID := fmt.Sprintf("cluster_%d", analysis.ClusterID)
		view.Nodes = append(view.Nodes, models.GalaxyNode{
			ID:          nodeID,
			Group:       "cluster",
			Size:        analysis.Size,
			RiskScore:   analysis.RiskScore,
			Color:       riskColor(analysis.RiskLevel),
			ClusterType: analysis.ClusterType,
		})
		view.ClusterMeta[nodeID] = analysis
	}
	return view
}

// riskColor maps a risk level to its dashboard color code.
func riskColor(level models.RiskLevel) string {
	switch level {
	case models.RiskCritical:
		return "#ff4444"
	case models.RiskHigh:
		return "#ff8800"
	case models.RiskMedium:
		return "#ffbb00"
	case models.RiskLow:
		return "#88cc00"
	case models.RiskMinimal:
		return "#00cc88"
	}
	return "#cccccc"
}
