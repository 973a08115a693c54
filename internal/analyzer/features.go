package analyzer

import (
	"time"

	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Per-Address Feature Extraction
//
// Turns a flat edge list into one behavioral feature vector per address in a
// single commutative pass, so the result is independent of edge order:
//
//   - degree and volume per direction
//   - transaction count and unique counterparty count
//   - activity span (days between first and last parsable timestamp)
//   - balance ratio (inbound share of total volume)
//
// Self-transfers intentionally increment both the in- and out- counters of
// the same address, and make the address its own counterparty. Edges with
// unparsable timestamps still count toward degree and volume; they are only
// excluded from the temporal aggregation.

// addressStats is the mutable accumulator used during the pass.
type addressStats struct {
	inDegree       int
	outDegree      int
	inVolume       float64
	outVolume      float64
	txCount        int
	counterparties map[string]struct{}
	firstSeen      time.Time
	lastSeen       time.Time
	hasTimestamp   bool
}

// ExtractFeatures builds the address → feature-vector map from raw edges.
// An empty edge list yields an empty map.
func ExtractFeatures(edges []models.TransactionEdge) map[string]models.AddressFeatures {
	stats := make(map[string]*addressStats)

	get := func(addr string) *addressStats {
		s, ok := stats[addr]
		if !ok {
			s = &addressStats{counterparties: make(map[string]struct{})}
			stats[addr] = s
		}
		return s
	}

	for _, edge := range edges {
		ts, tsOK := ParseTimestamp(edge.Timestamp)

		from := get(edge.FromAddress)
		from.outDegree++
		from.outVolume += edge.Value
		from.txCount++
		from.counterparties[edge.ToAddress] = struct{}{}
		if tsOK {
			from.observe(ts)
		}

		to := get(edge.ToAddress)
		to.inDegree++
		to.inVolume += edge.Value
		to.txCount++
		to.counterparties[edge.FromAddress] = struct{}{}
		if tsOK {
			to.observe(ts)
		}
	}

	features := make(map[string]models.AddressFeatures, len(stats))
	for addr, s := range stats {
		span := 0
		if s.hasTimestamp {
			span = int(s.lastSeen.Sub(s.firstSeen).Hours() / 24)
		}
		total := s.inVolume + s.outVolume
		if total < 1 {
			total = 1
		}
		features[addr] = models.AddressFeatures{
			InDegree:             s.inDegree,
			OutDegree:            s.outDegree,
			InVolume:             s.inVolume,
			OutVolume:            s.outVolume,
			TxCount:              s.txCount,
			UniqueCounterparties: len(s.counterparties),
			ActivitySpanDays:     span,
			BalanceRatio:         s.inVolume / total,
		}
	}
	return features
}

func (s *addressStats) observe(ts time.Time) {
	if !s.hasTimestamp {
		s.firstSeen = ts
		s.lastSeen = ts
		s.hasTimestamp = true
		return
	}
	if ts.Before(s.firstSeen) {
		s.firstSeen = ts
	}
	if ts.After(s.lastSeen) {
		s.lastSeen = ts
	}
}

// ParseTimestamp parses an edge timestamp. Accepts RFC3339 with or without
// fractional seconds; an empty or malformed value reports false.
func ParseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}
