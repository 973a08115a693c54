package models

import "time"

// WeiPerEth converts raw wei values to native token units for reporting.
// Ratios (concentration, similarity, balance ratio) are scale-invariant and
// computed on raw values.
const WeiPerEth = 1e18

// TransactionEdge is a single directed value transfer between two addresses.
// Edges are supplied by the caller (the graph query layer) and are never
// mutated or persisted by the analysis core.
type TransactionEdge struct {
	FromAddress string  `json:"fromAddress"`
	ToAddress   string  `json:"toAddress"`
	Value       float64 `json:"value"`               // wei
	Timestamp   string  `json:"timestamp,omitempty"` // RFC3339, may be absent
}

// AddressFeatures is the per-address behavioral feature vector synthesized
// from the raw edge list. Built fresh for every analysis call.
type AddressFeatures struct {
	InDegree             int     `json:"inDegree"`
	OutDegree            int     `json:"outDegree"`
	InVolume             float64 `json:"inVolume"`  // wei
	OutVolume            float64 `json:"outVolume"` // wei
	TxCount              int     `json:"txCount"`
	UniqueCounterparties int     `json:"uniqueCounterparties"`
	ActivitySpanDays     int     `json:"activitySpanDays"`
	BalanceRatio         float64 `json:"balanceRatio"` // inVolume / max(1, inVolume+outVolume)
}

// ClusterType is the closed set of behavioral cluster classifications.
type ClusterType string

const (
	ClusterSybilAttack  ClusterType = "Sybil Attack Network"
	ClusterWashTrading  ClusterType = "Wash Trading Ring"
	ClusterBotNetwork   ClusterType = "Coordinated Bot Network"
	ClusterSingleSource ClusterType = "Single-Source Funded Network"
	ClusterOrganic      ClusterType = "Organic Cluster"
)

// RiskLevel is the categorical banding of a 0-100 risk score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "MINIMAL"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// rank orders risk levels for threshold comparisons.
func (r RiskLevel) rank() int {
	switch r {
	case RiskMinimal:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return -1
}

// AtLeast reports whether r is at or above the given severity threshold.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return r.rank() >= threshold.rank()
}

// FundingAnalysis summarizes the external funding flowing into a cluster.
type FundingAnalysis struct {
	ExternalFundingSources int     `json:"externalFundingSources"`
	TotalFundingAmount     float64 `json:"totalFundingAmount"` // native units
	FundingConcentration   float64 `json:"fundingConcentration"`
	AmountSimilarity       float64 `json:"amountSimilarity"`
}

// CoordinatedWindow is a fixed time window in which more than half of a
// cluster's addresses were active.
type CoordinatedWindow struct {
	Timestamp         time.Time `json:"timestamp"`
	ParticipationRate float64   `json:"participationRate"`
}

// TimingAnalysis summarizes temporal coordination within a cluster.
type TimingAnalysis struct {
	ActivityCorrelation float64             `json:"activityCorrelation"`
	CoordinatedWindows  []CoordinatedWindow `json:"coordinatedWindows"`
	PeakCoordination    float64             `json:"peakCoordination"`
}

// AttackIndicators are the per-cluster attack-pattern flags.
// FlashLoanAttack and MixerUsage are reserved fields: always false until a
// detection extension populates them.
type AttackIndicators struct {
	SybilAttack     bool `json:"sybilAttack"`
	WashTrading     bool `json:"washTrading"`
	FlashLoanAttack bool `json:"flashLoanAttack"` // reserved
	MixerUsage      bool `json:"mixerUsage"`      // reserved
}

// Count returns the number of indicators currently raised.
func (ai AttackIndicators) Count() int {
	n := 0
	for _, b := range []bool{ai.SybilAttack, ai.WashTrading, ai.FlashLoanAttack, ai.MixerUsage} {
		if b {
			n++
		}
	}
	return n
}

// ClusterConnectivity splits a cluster's transactions into internal
// (both endpoints in-cluster) and external (exactly one endpoint in-cluster).
type ClusterConnectivity struct {
	InternalTransactions int `json:"internalTransactions"`
	ExternalTransactions int `json:"externalTransactions"`
}

// ClusterAnalysis is the full forensic verdict for one detected cluster.
// It is owned by a single analysis call and carries no cross-call state.
type ClusterAnalysis struct {
	ClusterID        int                 `json:"clusterId"`
	ClusterType      ClusterType         `json:"clusterType"`
	RiskScore        int                 `json:"riskScore"` // 0-100
	RiskLevel        RiskLevel           `json:"riskLevel"`
	Size             int                 `json:"size"`
	Addresses        []string            `json:"addresses"`
	Connectivity     ClusterConnectivity `json:"connectivity"`
	FundingAnalysis  FundingAnalysis     `json:"fundingAnalysis"`
	TimingAnalysis   TimingAnalysis      `json:"timingAnalysis"`
	AttackIndicators AttackIndicators    `json:"attackIndicators"`
	Recommendations  []string            `json:"recommendations"`
	Degraded         bool                `json:"degraded,omitempty"` // analysis fault isolated, fields zeroed
}

// AttackPattern is a network-wide (cross-cluster) detection.
type AttackPattern struct {
	PatternID   string    `json:"patternId"`
	PatternType string    `json:"patternType"`
	Description string    `json:"description"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Evidence    string    `json:"evidence"`
}

// NetworkMetrics holds network-wide aggregate statistics.
type NetworkMetrics struct {
	ClusteringCoverage float64 `json:"clusteringCoverage"`
	AverageClusterSize float64 `json:"averageClusterSize"`
	TotalValueFlow     float64 `json:"totalValueFlow"` // native units
}

// GalaxyNode is one cluster rendered as a node in the force-directed
// "galaxy" visualization. One node per cluster, never per address.
type GalaxyNode struct {
	ID          string      `json:"id"`
	Group       string      `json:"group"`
	Size        int         `json:"size"`
	RiskScore   int         `json:"riskScore"`
	Color       string      `json:"color"`
	ClusterType ClusterType `json:"clusterType"`
}

// GalaxyView is the visualization-ready shape of the analysis.
type GalaxyView struct {
	Nodes       []GalaxyNode               `json:"nodes"`
	ClusterMeta map[string]ClusterAnalysis `json:"clusterMeta"`
}

// NetworkOverview is the headline summary of one analysis run.
type NetworkOverview struct {
	TotalAddresses         int `json:"totalAddresses"`
	TotalTransactions      int `json:"totalTransactions"`
	ClusterCount           int `json:"clusterCount"`
	SuspiciousClusterCount int `json:"suspiciousClusterCount"`
}

// NetworkAnalysisResult is the aggregate output of one pipeline run.
type NetworkAnalysisResult struct {
	AnalysisTimestamp time.Time         `json:"analysisTimestamp"`
	Overview          NetworkOverview   `json:"networkOverview"`
	Clusters          []ClusterAnalysis `json:"clusters"`
	AttackPatterns    []AttackPattern   `json:"attackPatterns"`
	Metrics           NetworkMetrics    `json:"networkMetrics"`
	GalaxyView        GalaxyView        `json:"galaxyViewData"`
	Note              string            `json:"note,omitempty"` // e.g. insufficient-data explanation
}
