package analyzer

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Cross-Cluster Coordination Detection
//
// Two behaviorally distinct clusters exchanging a high number of transactions
// is the fingerprint of a coordinated multi-cluster campaign: one operator
// moving value between address groups built to look independent.
//
// Every unordered pair of clusters is compared exactly once; a pair whose
// inter-cluster edge count exceeds the configured threshold emits a HIGH
// "Cross-Cluster Coordination" pattern with the count as evidence.

// DetectCrossClusterPatterns scans all cluster pairs for abnormal
// inter-cluster transaction counts.
func DetectCrossClusterPatterns(clusters map[int][]string, edges []models.TransactionEdge, cfg Config) []models.AttackPattern {
	patterns := []models.AttackPattern{}
	if len(clusters) < 2 {
		return patterns
	}

	ids := make([]int, 0, len(clusters))
	membership := make(map[int]map[string]bool, len(clusters))
	for id, members := range clusters {
		ids = append(ids, id)
		set := make(map[string]bool, len(members))
		for _, addr := range members {
			set[addr] = true
		}
		membership[id] = set
	}
	sort.Ints(ids)

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := membership[ids[i]], membership[ids[j]]

			crossCount := 0
			for _, tx := range edges {
				if (a[tx.FromAddress] && b[tx.ToAddress]) || (b[tx.FromAddress] && a[tx.ToAddress]) {
					crossCount++
				}
			}

			if crossCount > cfg.CrossClusterThreshold {
				patterns = append(patterns, models.AttackPattern{
					PatternID:   uuid.NewString(),
					PatternType: "Cross-Cluster Coordination",
					Description: fmt.Sprintf("Clusters %d and %d show coordinated activity", ids[i], ids[j]),
					RiskLevel:   models.RiskHigh,
					Evidence:    fmt.Sprintf("%d transactions between clusters", crossCount),
				})
			}
		}
	}
	return patterns
}
