package analyzer

import "fmt"

// Config is the explicit threshold surface of the analysis pipeline.
// Every value that gates a detection or contributes to the risk score is a
// named field so boundary behavior can be probed precisely in tests.
type Config struct {
	// Clustering
	MinClusterSize     int     `json:"minClusterSize"`     // minimum members per returned cluster
	NeighborhoodRadius float64 `json:"neighborhoodRadius"` // DBSCAN eps in standardized feature space
	MinSamples         int     `json:"minSamples"`         // DBSCAN core-point neighbor count; 0 = MinClusterSize

	// Attack indicators
	SybilSizeThreshold     int     `json:"sybilSizeThreshold"`     // minimum cluster size for Sybil detection
	SybilMaxFundingSources int     `json:"sybilMaxFundingSources"` // max distinct external funders for Sybil
	WashTradingMultiplier  float64 `json:"washTradingMultiplier"`  // internal volume must exceed this × external

	// Cross-cluster coordination
	CrossClusterThreshold int `json:"crossClusterThreshold"` // transactions between two clusters

	// Timing
	CoordinationWindowMinutes int `json:"coordinationWindowMinutes"`

	// Risk score weights (additive, capped at 100)
	Weights RiskWeights `json:"weights"`
}

// RiskWeights are the named contributions to the additive cluster risk score.
type RiskWeights struct {
	SizeOver50            int `json:"sizeOver50"`
	SizeOver20            int `json:"sizeOver20"`
	SizeOver10            int `json:"sizeOver10"`
	HighConcentration     int `json:"highConcentration"`     // funding concentration > 0.8
	ModerateConcentration int `json:"moderateConcentration"` // funding concentration > 0.5
	AmountSimilarity      int `json:"amountSimilarity"`      // similarity > 0.8
	ActivityCorrelation   int `json:"activityCorrelation"`   // correlation > 0.7
	PerAttackIndicator    int `json:"perAttackIndicator"`
}

// DefaultConfig returns the production threshold set.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:            5,
		NeighborhoodRadius:        0.5,
		MinSamples:                0, // falls back to MinClusterSize
		SybilSizeThreshold:        10,
		SybilMaxFundingSources:    3,
		WashTradingMultiplier:     2.0,
		CrossClusterThreshold:     5,
		CoordinationWindowMinutes: 15,
		Weights: RiskWeights{
			SizeOver50:            30,
			SizeOver20:            20,
			SizeOver10:            10,
			HighConcentration:     25,
			ModerateConcentration: 15,
			AmountSimilarity:      20,
			ActivityCorrelation:   25,
			PerAttackIndicator:    15,
		},
	}
}

// EffectiveMinSamples resolves the DBSCAN min_samples parameter.
func (c Config) EffectiveMinSamples() int {
	if c.MinSamples > 0 {
		return c.MinSamples
	}
	return c.MinClusterSize
}

// Validate rejects invalid parameter values before the pipeline starts.
func (c Config) Validate() error {
	if c.MinClusterSize <= 0 {
		return fmt.Errorf("invalid config: minClusterSize must be positive, got %d", c.MinClusterSize)
	}
	if c.NeighborhoodRadius <= 0 {
		return fmt.Errorf("invalid config: neighborhoodRadius must be positive, got %g", c.NeighborhoodRadius)
	}
	if c.MinSamples < 0 {
		return fmt.Errorf("invalid config: minSamples must be non-negative, got %d", c.MinSamples)
	}
	if c.SybilSizeThreshold <= 0 {
		return fmt.Errorf("invalid config: sybilSizeThreshold must be positive, got %d", c.SybilSizeThreshold)
	}
	if c.SybilMaxFundingSources < 0 {
		return fmt.Errorf("invalid config: sybilMaxFundingSources must be non-negative, got %d", c.SybilMaxFundingSources)
	}
	if c.WashTradingMultiplier <= 0 {
		return fmt.Errorf("invalid config: washTradingMultiplier must be positive, got %g", c.WashTradingMultiplier)
	}
	if c.CrossClusterThreshold <= 0 {
		return fmt.Errorf("invalid config: crossClusterThreshold must be positive, got %d", c.CrossClusterThreshold)
	}
	if c.CoordinationWindowMinutes <= 0 {
		return fmt.Errorf("invalid config: coordinationWindowMinutes must be positive, got %d", c.CoordinationWindowMinutes)
	}
	return nil
}
