package analyzer

import (
	"fmt"
	"sort"
	"testing"

	"github.com/sentinel-labs/network-behavior-engine/internal/metrics"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// twoGroupFeatures builds two tight behavioral groups plus optional outliers.
// Members of a group share an identical feature vector, so after z-scoring
// their mutual distance is zero while the groups stay far apart.
func twoGroupFeatures(sizeA, sizeB int) map[string]models.AddressFeatures {
	features := make(map[string]models.AddressFeatures)

	hub := models.AddressFeatures{
		InDegree: 10, OutDegree: 1, InVolume: 50e18, OutVolume: 5e18,
		TxCount: 11, UniqueCounterparties: 8, ActivitySpanDays: 2, BalanceRatio: 0.9,
	}
	spender := models.AddressFeatures{
		InDegree: 1, OutDegree: 9, InVolume: 2e18, OutVolume: 60e18,
		TxCount: 10, UniqueCounterparties: 3, ActivitySpanDays: 30, BalanceRatio: 0.03,
	}

	for i := 0; i < sizeA; i++ {
		features[fmt.Sprintf("0xa%02d", i)] = hub
	}
	for i := 0; i < sizeB; i++ {
		features[fmt.Sprintf("0xb%02d", i)] = spender
	}
	return features
}

func clusterAddressSets(clusters map[int][]string) []map[string]bool {
	var sets []map[string]bool
	for _, members := range clusters {
		set := make(map[string]bool)
		for _, addr := range members {
			set[addr] = true
		}
		sets = append(sets, set)
	}
	return sets
}

func TestDetectClusters_TwoDistinctGroups(t *testing.T) {
	features := twoGroupFeatures(6, 6)
	cfg := DefaultConfig()

	clusters := DetectClusters(features, cfg)

	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(clusters))
	}
	for _, set := range clusterAddressSets(clusters) {
		if len(set) != 6 {
			t.Errorf("Expected cluster of size 6, got %d", len(set))
		}
		// A cluster must never mix the two behavioral groups.
		hasA, hasB := false, false
		for addr := range set {
			if addr[2] == 'a' {
				hasA = true
			} else {
				hasB = true
			}
		}
		if hasA && hasB {
			t.Error("Cluster mixes distinct behavioral groups")
		}
	}
}

func TestDetectClusters_NoiseDropped(t *testing.T) {
	features := twoGroupFeatures(6, 6)
	features["0xoutlier"] = models.AddressFeatures{
		InDegree: 500, OutDegree: 400, InVolume: 9000e18, OutVolume: 8000e18,
		TxCount: 900, UniqueCounterparties: 300, ActivitySpanDays: 400, BalanceRatio: 0.5,
	}

	clusters := DetectClusters(features, DefaultConfig())

	for _, members := range clusters {
		for _, addr := range members {
			if addr == "0xoutlier" {
				t.Error("Outlier address must be dropped as noise")
			}
		}
	}
}

func TestDetectClusters_UndersizedGroupExcluded(t *testing.T) {
	// Group B has only 3 members: below min_samples, its points never reach
	// core density and stay noise.
	features := twoGroupFeatures(6, 3)

	clusters := DetectClusters(features, DefaultConfig())

	if len(clusters) != 1 {
		t.Fatalf("Expected exactly 1 cluster, got %d", len(clusters))
	}
	for _, members := range clusters {
		if len(members) != 6 {
			t.Errorf("Expected the size-6 group only, got cluster of %d", len(members))
		}
	}
}

func TestDetectClusters_MembersSubsetOfInput(t *testing.T) {
	features := twoGroupFeatures(6, 6)
	clusters := DetectClusters(features, DefaultConfig())

	for _, members := range clusters {
		for _, addr := range members {
			if _, ok := features[addr]; !ok {
				t.Errorf("Cluster member %s not present in input features", addr)
			}
		}
	}
}

func TestDetectClusters_MinimumPopulation(t *testing.T) {
	features := map[string]models.AddressFeatures{
		"0xa": {InDegree: 1, TxCount: 1},
	}

	clusters := DetectClusters(features, DefaultConfig())
	if len(clusters) != 0 {
		t.Errorf("Expected no clusters for single-address population, got %d", len(clusters))
	}

	clusters = DetectClusters(nil, DefaultConfig())
	if len(clusters) != 0 {
		t.Errorf("Expected no clusters for empty feature map, got %d", len(clusters))
	}
}

func TestDetectClusters_Idempotent(t *testing.T) {
	features := twoGroupFeatures(8, 8)
	cfg := DefaultConfig()

	first := DetectClusters(features, cfg)
	second := DetectClusters(features, cfg)

	labelsOf := func(clusters map[int][]string) map[string]int {
		labels := make(map[string]int)
		for id, members := range clusters {
			for _, addr := range members {
				labels[addr] = id
			}
		}
		return labels
	}

	ari := metrics.AdjustedRandIndex(labelsOf(first), labelsOf(second))
	if ari != 1.0 {
		t.Errorf("Expected identical partitions across reruns (ARI=1.0), got %f", ari)
	}

	// Membership sets must match exactly, not just statistically.
	for id, members := range first {
		got := append([]string(nil), second[id]...)
		want := append([]string(nil), members...)
		sort.Strings(got)
		sort.Strings(want)
		if len(got) != len(want) {
			t.Fatalf("Cluster %d size differs across reruns: %d vs %d", id, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Cluster %d membership differs across reruns", id)
				break
			}
		}
	}
}

func TestStandardize_ZeroVarianceColumn(t *testing.T) {
	matrix := [][]float64{
		{1, 5},
		{2, 5},
		{3, 5},
	}
	standardize(matrix)

	for i := range matrix {
		if matrix[i][1] != 0 {
			t.Errorf("Zero-variance column must center to 0, got %f", matrix[i][1])
		}
	}
}
