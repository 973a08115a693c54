package analyzer

import (
	"log"
	"sort"
	"time"

	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Analysis Pipeline Orchestration
//
// One call in, one result out. The pipeline runs entirely in-memory on the
// caller's edge list (already scoped upstream around any center address):
//
//   features → density clustering → per-cluster behavior analysis →
//   cross-cluster coordination → network metrics + galaxy view
//
// Nothing is shared across calls: feature maps, normalization statistics and
// cluster maps are rebuilt per request, so concurrent analyses never
// interfere. A fault while analyzing one cluster is isolated at the cluster
// boundary and reported as a degraded result instead of sinking the run.

// AnalyzeNetwork runs the full cluster analysis pipeline over an edge list.
// Invalid configuration is the only rejected condition; empty or degenerate
// input produces an explicit no-clusters result.
func AnalyzeNetwork(edges []models.TransactionEdge, cfg Config) (models.NetworkAnalysisResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.NetworkAnalysisResult{}, err
	}

	result := models.NetworkAnalysisResult{
		AnalysisTimestamp: time.Now().UTC(),
		Clusters:          []models.ClusterAnalysis{},
		AttackPatterns:    []models.AttackPattern{},
		GalaxyView: models.GalaxyView{
			Nodes:       []models.GalaxyNode{},
			ClusterMeta: map[string]models.ClusterAnalysis{},
		},
	}

	if len(edges) == 0 {
		result.Note = "No network data available"
		return result, nil
	}

	features := ExtractFeatures(edges)
	clusters := DetectClusters(features, cfg)

	ids := make([]int, 0, len(clusters))
	for id := range clusters {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		result.Clusters = append(result.Clusters, analyzeClusterSafe(id, clusters[id], edges, cfg))
	}

	result.AttackPatterns = DetectCrossClusterPatterns(clusters, edges, cfg)
	result.Metrics = ComputeNetworkMetrics(edges, clusters)
	result.GalaxyView = BuildGalaxyView(result.Clusters)

	suspicious := 0
	for _, c := range result.Clusters {
		if c.RiskLevel.AtLeast(models.RiskMedium) {
			suspicious++
		}
	}

	result.Overview = models.NetworkOverview{
		TotalAddresses:         len(features),
		TotalTransactions:      len(edges),
		ClusterCount:           len(clusters),
		SuspiciousClusterCount: suspicious,
	}
	return result, nil
}

// analyzeClusterFn is swapped out in tests to force a per-cluster fault.
var analyzeClusterFn = AnalyzeCluster

// analyzeClusterSafe isolates faults at the per-cluster boundary: a panic in
// one cluster's analysis yields a zeroed organic verdict flagged as degraded.
func analyzeClusterSafe(clusterID int, members []string, edges []models.TransactionEdge, cfg Config) (analysis models.ClusterAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pipeline] cluster %d analysis failed, reporting degraded result: %v", clusterID, r)
			analysis = models.ClusterAnalysis{
				ClusterID:       clusterID,
				ClusterType:     models.ClusterOrganic,
				RiskLevel:       models.RiskMinimal,
				Size:            len(members),
				Addresses:       members,
				Recommendations: []string{},
				Degraded:        true,
			}
		}
	}()
	return analyzeClusterFn(clusterID, members, edges, cfg)
}
