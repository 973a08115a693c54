package analyzer

import (
	"math"
	"sort"
	"time"

	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Cluster Behavior Analysis
//
// The forensic verdict for one detected cluster, computed in order:
//
//   1. Partition touching transactions into internal / external
//   2. Funding analysis: concentration and amount similarity of external
//      inbound funding (the Sybil fingerprint — many addresses, few funders,
//      near-identical amounts)
//   3. Timing analysis: fixed-window participation rates expose coordinated
//      bursts that organic activity never produces
//   4. Attack indicators (Sybil, wash trading; flash-loan and mixer flags
//      are reserved and stay false)
//   5. Additive risk score, capped at [0,100]
//   6. First-match classification: Sybil → Wash → Bot → Single-Source → Organic
//   7. Risk level banding and analyst recommendations

// AnalyzeCluster computes the behavioral verdict for one cluster's members
// against the full edge list. A cluster touching zero transactions yields an
// all-zero organic result rather than an error.
func AnalyzeCluster(clusterID int, members []string, edges []models.TransactionEdge, cfg Config) models.ClusterAnalysis {
	inCluster := make(map[string]bool, len(members))
	for _, addr := range members {
		inCluster[addr] = true
	}

	var clusterTxs []models.TransactionEdge
	internal := 0
	for _, tx := range edges {
		fromIn := inCluster[tx.FromAddress]
		toIn := inCluster[tx.ToAddress]
		if !fromIn && !toIn {
			continue
		}
		clusterTxs = append(clusterTxs, tx)
		if fromIn && toIn {
			internal++
		}
	}

	funding := analyzeFundingPatterns(inCluster, edges)
	timing := analyzeTimingPatterns(inCluster, len(members), clusterTxs, cfg)
	indicators := detectAttackIndicators(inCluster, len(members), edges, cfg)

	score := scoreClusterRisk(len(members), funding, timing, indicators, cfg.Weights)

	return models.ClusterAnalysis{
		ClusterID:   clusterID,
		ClusterType: classifyCluster(funding, timing, indicators),
		RiskScore:   score,
		RiskLevel:   RiskLevelForScore(score),
		Size:        len(members),
		Addresses:   members,
		Connectivity: models.ClusterConnectivity{
			InternalTransactions: internal,
			ExternalTransactions: len(clusterTxs) - internal,
		},
		FundingAnalysis:  funding,
		TimingAnalysis:   timing,
		AttackIndicators: indicators,
		Recommendations:  recommendations(classifyCluster(funding, timing, indicators), RiskLevelForScore(score)),
	}
}

// analyzeFundingPatterns aggregates external inbound volume by source address.
// Concentration is the largest single funder's share; similarity is
// 1 - (stddev/mean) over per-source totals (1.0 when a single funder supplies
// everything, 0 when there is no external funding at all).
func analyzeFundingPatterns(inCluster map[string]bool, edges []models.TransactionEdge) models.FundingAnalysis {
	funding := make(map[string]float64)
	for _, tx := range edges {
		if inCluster[tx.ToAddress] && !inCluster[tx.FromAddress] {
			funding[tx.FromAddress] += tx.Value
		}
	}

	total := 0.0
	maxSingle := 0.0
	amounts := make([]float64, 0, len(funding))
	for _, v := range funding {
		total += v
		if v > maxSingle {
			maxSingle = v
		}
		amounts = append(amounts, v)
	}

	denom := total
	if denom < 1 {
		denom = 1
	}

	similarity := 0.0
	if len(amounts) > 0 {
		mean, std := meanStd(amounts)
		if mean < 1 {
			mean = 1
		}
		similarity = 1 - std/mean
	}

	return models.FundingAnalysis{
		ExternalFundingSources: len(funding),
		TotalFundingAmount:     total / models.WeiPerEth,
		FundingConcentration:   maxSingle / denom,
		AmountSimilarity:       similarity,
	}
}

// analyzeTimingPatterns buckets cluster-touching transactions into fixed
// windows and measures what fraction of the cluster was active per window.
// Unparsable timestamps are skipped.
func analyzeTimingPatterns(inCluster map[string]bool, clusterSize int, clusterTxs []models.TransactionEdge, cfg Config) models.TimingAnalysis {
	if len(clusterTxs) == 0 || clusterSize == 0 {
		return models.TimingAnalysis{CoordinatedWindows: []models.CoordinatedWindow{}}
	}

	windowSize := time.Duration(cfg.CoordinationWindowMinutes) * time.Minute
	windows := make(map[time.Time]map[string]bool)

	for _, tx := range clusterTxs {
		ts, ok := ParseTimestamp(tx.Timestamp)
		if !ok {
			continue
		}
		// Normalize to UTC so offset timestamps share window keys and
		// buckets align to UTC wall-clock boundaries.
		key := ts.UTC().Truncate(windowSize)
		if windows[key] == nil {
			windows[key] = make(map[string]bool)
		}
		if inCluster[tx.FromAddress] {
			windows[key][tx.FromAddress] = true
		}
		if inCluster[tx.ToAddress] {
			windows[key][tx.ToAddress] = true
		}
	}

	coordinated := []models.CoordinatedWindow{}
	sum := 0.0
	peak := 0.0
	for key, active := range windows {
		rate := float64(len(active)) / float64(clusterSize)
		sum += rate
		if rate > peak {
			peak = rate
		}
		if rate > 0.5 {
			coordinated = append(coordinated, models.CoordinatedWindow{
				Timestamp:         key,
				ParticipationRate: rate,
			})
		}
	}
	sort.Slice(coordinated, func(i, j int) bool {
		return coordinated[i].Timestamp.Before(coordinated[j].Timestamp)
	})

	correlation := 0.0
	if len(windows) > 0 {
		correlation = sum / float64(len(windows))
	}

	return models.TimingAnalysis{
		ActivityCorrelation: correlation,
		CoordinatedWindows:  coordinated,
		PeakCoordination:    peak,
	}
}

// detectAttackIndicators raises the per-cluster attack flags.
//
// Sybil: a large cluster fed by very few external funders simulates
// independent actors from a small controlling set.
// Wash trading: internal volume dwarfing external volume inflates apparent
// activity among addresses the same actor controls.
func detectAttackIndicators(inCluster map[string]bool, clusterSize int, edges []models.TransactionEdge, cfg Config) models.AttackIndicators {
	var indicators models.AttackIndicators

	if clusterSize >= cfg.SybilSizeThreshold {
		fundingSources := make(map[string]bool)
		for _, tx := range edges {
			if inCluster[tx.ToAddress] && !inCluster[tx.FromAddress] {
				fundingSources[tx.FromAddress] = true
			}
		}
		if len(fundingSources) <= cfg.SybilMaxFundingSources {
			indicators.SybilAttack = true
		}
	}

	internalVolume := 0.0
	externalVolume := 0.0
	for _, tx := range edges {
		fromIn := inCluster[tx.FromAddress]
		toIn := inCluster[tx.ToAddress]
		switch {
		case fromIn && toIn:
			internalVolume += tx.Value
		case fromIn != toIn:
			externalVolume += tx.Value
		}
	}
	if internalVolume > externalVolume*cfg.WashTradingMultiplier {
		indicators.WashTrading = true
	}

	return indicators
}

// scoreClusterRisk composes the additive risk score, capped at [0,100].
func scoreClusterRisk(size int, funding models.FundingAnalysis, timing models.TimingAnalysis, indicators models.AttackIndicators, w RiskWeights) int {
	score := 0

	switch {
	case size > 50:
		score += w.SizeOver50
	case size > 20:
		score += w.SizeOver20
	case size > 10:
		score += w.SizeOver10
	}

	switch {
	case funding.FundingConcentration > 0.8:
		score += w.HighConcentration
	case funding.FundingConcentration > 0.5:
		score += w.ModerateConcentration
	}

	if funding.AmountSimilarity > 0.8 {
		score += w.AmountSimilarity
	}
	if timing.ActivityCorrelation > 0.7 {
		score += w.ActivityCorrelation
	}

	score += indicators.Count() * w.PerAttackIndicator

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// classifyCluster picks the behavioral type, first match wins.
// The priority order is deliberate: a cluster that is both Sybil and wash
// trading is a Sybil Attack Network.
func classifyCluster(funding models.FundingAnalysis, timing models.TimingAnalysis, indicators models.AttackIndicators) models.ClusterType {
	switch {
	case indicators.SybilAttack:
		return models.ClusterSybilAttack
	case indicators.WashTrading:
		return models.ClusterWashTrading
	case timing.ActivityCorrelation > 0.7:
		return models.ClusterBotNetwork
	case funding.FundingConcentration > 0.8:
		return models.ClusterSingleSource
	default:
		return models.ClusterOrganic
	}
}

// RiskLevelForScore bands a 0-100 score into a categorical risk level.
func RiskLevelForScore(score int) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 40:
		return models.RiskMedium
	case score >= 20:
		return models.RiskLow
	default:
		return models.RiskMinimal
	}
}

// recommendations produces analyst guidance for the cluster verdict.
func recommendations(clusterType models.ClusterType, level models.RiskLevel) []string {
	recs := []string{}

	if level.AtLeast(models.RiskHigh) {
		recs = append(recs,
			"Immediate investigation recommended",
			"Consider flagging all addresses in cluster",
		)
	}

	switch clusterType {
	case models.ClusterSybilAttack:
		recs = append(recs,
			"Verify funding sources",
			"Check for identity verification bypassing",
		)
	case models.ClusterWashTrading:
		recs = append(recs,
			"Monitor for artificial volume inflation",
			"Check for market manipulation",
		)
	case models.ClusterBotNetwork:
		recs = append(recs,
			"Review transaction timing for automation signatures",
		)
	case models.ClusterSingleSource:
		recs = append(recs,
			"Trace the dominant funding source",
		)
	case models.ClusterOrganic:
		// No cluster-type-specific action for organic behavior.
	}

	return recs
}

// meanStd returns the population mean and standard deviation.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	std = math.Sqrt(variance / float64(len(values)))
	return mean, std
}
