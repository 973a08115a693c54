package analyzer

import (
	"fmt"
	"math"
	"testing"

	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

func TestAnalyzeNetwork_EmptyEdges(t *testing.T) {
	result, err := AnalyzeNetwork(nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Empty input must not error: %v", err)
	}

	if result.Note != "No network data available" {
		t.Errorf("Expected insufficient-data note, got %q", result.Note)
	}
	if result.Overview.TotalAddresses != 0 || result.Overview.TotalTransactions != 0 {
		t.Errorf("Expected zero overview counts, got %+v", result.Overview)
	}
	if result.Overview.ClusterCount != 0 {
		t.Errorf("Expected 0 clusters, got %d", result.Overview.ClusterCount)
	}
	if result.Clusters == nil || result.AttackPatterns == nil || result.GalaxyView.Nodes == nil {
		t.Error("Collections must be empty, not nil, for JSON serialization")
	}
	if result.AnalysisTimestamp.IsZero() {
		t.Error("Analysis timestamp must be set")
	}
}

func TestAnalyzeNetwork_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NeighborhoodRadius = -1

	_, err := AnalyzeNetwork([]models.TransactionEdge{
		{FromAddress: "0xa", ToAddress: "0xb", Value: 1e18},
	}, cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative neighborhood radius")
	}
}

func TestAnalyzeNetwork_SybilEndToEnd(t *testing.T) {
	// 12 symmetric sybil members funded identically by one address, with a
	// uniform internal ring. Every member shares one feature vector, so the
	// group clusters; the funder's vector is far away and stays noise.
	members, edges := sybilEdges(12, "2024-05-01T12:03:00Z")

	result, err := AnalyzeNetwork(edges, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeNetwork failed: %v", err)
	}

	if result.Overview.TotalAddresses != 13 {
		t.Errorf("Expected 13 addresses (12 members + funder), got %d", result.Overview.TotalAddresses)
	}
	if result.Overview.TotalTransactions != len(edges) {
		t.Errorf("Expected %d transactions, got %d", len(edges), result.Overview.TotalTransactions)
	}
	if result.Overview.ClusterCount != 1 {
		t.Fatalf("Expected 1 cluster, got %d", result.Overview.ClusterCount)
	}
	if result.Overview.SuspiciousClusterCount != 1 {
		t.Errorf("Expected 1 suspicious cluster, got %d", result.Overview.SuspiciousClusterCount)
	}

	cluster := result.Clusters[0]
	if cluster.Size != len(members) {
		t.Errorf("Expected cluster of %d, got %d", len(members), cluster.Size)
	}
	for _, addr := range cluster.Addresses {
		if addr == "0xfunder" {
			t.Error("Funder must stay outside the cluster as noise")
		}
	}
	if cluster.ClusterType != models.ClusterSybilAttack {
		t.Errorf("Expected %s, got %s", models.ClusterSybilAttack, cluster.ClusterType)
	}
	if cluster.RiskLevel != models.RiskCritical {
		t.Errorf("Expected CRITICAL, got %s", cluster.RiskLevel)
	}
	if cluster.Degraded {
		t.Error("Healthy analysis must not be flagged degraded")
	}

	// Galaxy view renders one node per cluster.
	if len(result.GalaxyView.Nodes) != 1 {
		t.Fatalf("Expected 1 galaxy node, got %d", len(result.GalaxyView.Nodes))
	}
	node := result.GalaxyView.Nodes[0]
	if node.ID != "cluster_0" {
		t.Errorf("Expected node id cluster_0, got %s", node.ID)
	}
	if node.Color != "#ff4444" {
		t.Errorf("Expected CRITICAL color #ff4444, got %s", node.Color)
	}
	if _, ok := result.GalaxyView.ClusterMeta[node.ID]; !ok {
		t.Errorf("Cluster metadata missing for %s", node.ID)
	}

	wantCoverage := 12.0 / 13.0
	if math.Abs(result.Metrics.ClusteringCoverage-wantCoverage) > 1e-9 {
		t.Errorf("Expected coverage %f, got %f", wantCoverage, result.Metrics.ClusteringCoverage)
	}
	if math.Abs(result.Metrics.AverageClusterSize-12.0) > 1e-9 {
		t.Errorf("Expected average cluster size 12, got %f", result.Metrics.AverageClusterSize)
	}
	// 12 × 10 ETH funding + 12 × 1 ETH ring
	if math.Abs(result.Metrics.TotalValueFlow-132.0) > 1e-9 {
		t.Errorf("Expected 132 ETH total flow, got %f", result.Metrics.TotalValueFlow)
	}
}

func TestAnalyzeNetwork_RiskScoreBounds(t *testing.T) {
	_, edges := sybilEdges(12, "2024-05-01T12:03:00Z")
	// Extra internal churn to push the additive score past the cap.
	for i := 0; i < 12; i++ {
		edges = append(edges, models.TransactionEdge{
			FromAddress: edges[i].ToAddress, ToAddress: edges[(i+5)%12].ToAddress,
			Value: 80e18, Timestamp: "2024-05-01T12:05:00Z",
		})
	}

	result, err := AnalyzeNetwork(edges, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeNetwork failed: %v", err)
	}
	for _, c := range result.Clusters {
		if c.RiskScore < 0 || c.RiskScore > 100 {
			t.Errorf("Cluster %d risk score out of bounds: %d", c.ClusterID, c.RiskScore)
		}
	}
}

// twoSybilNetworks builds two independent coordinated groups whose volume
// scales differ enough to cluster separately.
func twoSybilNetworks() []models.TransactionEdge {
	var edges []models.TransactionEdge
	build := func(prefix string, funding, ring float64) {
		members := make([]string, 12)
		for i := range members {
			members[i] = fmt.Sprintf("0x%s%02d", prefix, i)
		}
		for _, addr := range members {
			edges = append(edges, models.TransactionEdge{
				FromAddress: "0xfunder_" + prefix, ToAddress: addr, Value: funding,
				Timestamp: "2024-05-01T12:03:00Z",
			})
		}
		for i, addr := range members {
			edges = append(edges, models.TransactionEdge{
				FromAddress: addr, ToAddress: members[(i+1)%len(members)], Value: ring,
				Timestamp: "2024-05-01T12:03:00Z",
			})
		}
	}
	build("lo", 10e18, 1e18)
	build("hi", 500e18, 50e18)
	return edges
}

func TestAnalyzeNetwork_ClusterFaultIsolated(t *testing.T) {
	edges := twoSybilNetworks()

	// Sanity: both groups cluster on a healthy run.
	healthy, err := AnalyzeNetwork(edges, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeNetwork failed: %v", err)
	}
	if healthy.Overview.ClusterCount != 2 {
		t.Fatalf("Expected 2 clusters, got %d", healthy.Overview.ClusterCount)
	}

	// Force a fault inside exactly one cluster's analysis.
	faultID := healthy.Clusters[0].ClusterID
	original := analyzeClusterFn
	analyzeClusterFn = func(clusterID int, members []string, e []models.TransactionEdge, cfg Config) models.ClusterAnalysis {
		if clusterID == faultID {
			panic("injected cluster fault")
		}
		return AnalyzeCluster(clusterID, members, e, cfg)
	}
	defer func() { analyzeClusterFn = original }()

	result, err := AnalyzeNetwork(edges, DefaultConfig())
	if err != nil {
		t.Fatalf("A cluster fault must not fail the run: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("Expected both clusters reported, got %d", len(result.Clusters))
	}

	var faulted, sibling *models.ClusterAnalysis
	for i := range result.Clusters {
		if result.Clusters[i].ClusterID == faultID {
			faulted = &result.Clusters[i]
		} else {
			sibling = &result.Clusters[i]
		}
	}
	if faulted == nil || sibling == nil {
		t.Fatal("Missing cluster verdicts in result")
	}

	if !faulted.Degraded {
		t.Error("Faulted cluster must be flagged degraded")
	}
	if faulted.ClusterType != models.ClusterOrganic || faulted.RiskScore != 0 ||
		faulted.RiskLevel != models.RiskMinimal {
		t.Errorf("Degraded verdict must be zeroed, got %+v", faulted)
	}
	if faulted.Size == 0 || len(faulted.Addresses) != faulted.Size {
		t.Errorf("Degraded verdict must keep membership, got size=%d addresses=%d",
			faulted.Size, len(faulted.Addresses))
	}

	if sibling.Degraded {
		t.Error("Sibling cluster must complete normally")
	}
	if sibling.ClusterType != models.ClusterSybilAttack {
		t.Errorf("Sibling analysis lost: expected %s, got %s",
			models.ClusterSybilAttack, sibling.ClusterType)
	}
}

func TestAnalyzeNetwork_OrganicTrafficStaysQuiet(t *testing.T) {
	// Sparse pairwise transfers with unique endpoints: no dense region forms.
	edges := []models.TransactionEdge{
		{FromAddress: "0xp1", ToAddress: "0xq1", Value: 3e18, Timestamp: "2024-05-01T08:00:00Z"},
		{FromAddress: "0xp2", ToAddress: "0xq2", Value: 7e18, Timestamp: "2024-05-02T09:30:00Z"},
		{FromAddress: "0xp3", ToAddress: "0xq3", Value: 1e18, Timestamp: "2024-05-03T14:00:00Z"},
	}
	cfg := DefaultConfig()
	cfg.MinClusterSize = 7 // senders and receivers form two symmetric groups of 3

	result, err := AnalyzeNetwork(edges, cfg)
	if err != nil {
		t.Fatalf("AnalyzeNetwork failed: %v", err)
	}
	if result.Overview.ClusterCount != 0 {
		t.Errorf("Expected no clusters in sparse organic traffic, got %d", result.Overview.ClusterCount)
	}
	if result.Overview.SuspiciousClusterCount != 0 {
		t.Errorf("Expected no suspicious clusters, got %d", result.Overview.SuspiciousClusterCount)
	}
	if len(result.AttackPatterns) != 0 {
		t.Errorf("Expected no attack patterns, got %d", len(result.AttackPatterns))
	}
}
