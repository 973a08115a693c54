package analyzer

import (
	"math"
	"sort"

	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Density-Based Cluster Detection
//
// Groups addresses whose behavioral feature vectors are mutually close.
// Two steps:
//
//   1. Standardize each feature dimension to zero mean / unit variance
//      across the current request's address population, so raw transfer
//      counts and wei-scale volumes do not dominate the distance metric.
//      Normalization state is strictly per-call; nothing is cached.
//   2. DBSCAN: a point with at least minSamples neighbors (itself included)
//      within neighborhoodRadius seeds a cluster, which expands through
//      density-reachable points. Points that never reach that density are
//      noise and are dropped.
//
// Addresses are visited in sorted order so cluster membership and labels are
// reproducible for identical input and configuration. Clusters that end up
// below MinClusterSize are discarded as a defensive recheck.

const noiseLabel = -1

// DetectClusters groups addresses into dense behavioral clusters.
// Returns an empty map when fewer than 2 addresses have features.
func DetectClusters(features map[string]models.AddressFeatures, cfg Config) map[int][]string {
	clusters := make(map[int][]string)
	if len(features) < 2 {
		return clusters
	}

	addresses := make([]string, 0, len(features))
	for addr := range features {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	matrix := buildFeatureMatrix(addresses, features)
	standardize(matrix)

	labels := dbscan(matrix, cfg.NeighborhoodRadius, cfg.EffectiveMinSamples())

	for i, label := range labels {
		if label == noiseLabel {
			continue
		}
		clusters[label] = append(clusters[label], addresses[i])
	}

	// Defensive recheck: the density threshold should already enforce this.
	for id, members := range clusters {
		if len(members) < cfg.MinClusterSize {
			delete(clusters, id)
		}
	}
	return clusters
}

// buildFeatureMatrix lays out one row per address, columns in a fixed order.
// Volumes are converted to native units so the pre-standardized magnitudes
// stay finite.
func buildFeatureMatrix(addresses []string, features map[string]models.AddressFeatures) [][]float64 {
	matrix := make([][]float64, len(addresses))
	for i, addr := range addresses {
		f := features[addr]
		matrix[i] = []float64{
			float64(f.InDegree),
			float64(f.OutDegree),
			f.InVolume / models.WeiPerEth,
			f.OutVolume / models.WeiPerEth,
			float64(f.TxCount),
			float64(f.UniqueCounterparties),
			float64(f.ActivitySpanDays),
			f.BalanceRatio,
		}
	}
	return matrix
}

// standardize applies z-score normalization per column, in place.
// A zero-variance column is left centered (scale 1) rather than divided by 0.
func standardize(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	rows := float64(len(matrix))
	cols := len(matrix[0])

	for c := 0; c < cols; c++ {
		mean := 0.0
		for _, row := range matrix {
			mean += row[c]
		}
		mean /= rows

		variance := 0.0
		for _, row := range matrix {
			d := row[c] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / rows)
		if std == 0 {
			std = 1
		}

		for _, row := range matrix {
			row[c] = (row[c] - mean) / std
		}
	}
}

// dbscan labels each row with a cluster id, or noiseLabel for outliers.
// Classic expansion algorithm; the neighbor count includes the point itself.
func dbscan(points [][]float64, eps float64, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noiseLabel
	}
	visited := make([]bool, n)
	nextCluster := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			continue // stays noise unless reached from a core point
		}

		labels[i] = nextCluster
		// Expand: seed list grows as new core points are discovered.
		for k := 0; k < len(neighbors); k++ {
			j := neighbors[k]
			if labels[j] == noiseLabel {
				labels[j] = nextCluster // border or core point claimed by this cluster
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			jNeighbors := regionQuery(points, j, eps)
			if len(jNeighbors) >= minSamples {
				neighbors = append(neighbors, jNeighbors...)
			}
		}
		nextCluster++
	}
	return labels
}

// regionQuery returns the indices of all points within eps of points[i],
// including i itself.
func regionQuery(points [][]float64, i int, eps float64) []int {
	var neighbors []int
	for j := range points {
		if euclidean(points[i], points[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
