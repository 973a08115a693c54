package metrics

import "math"

// Cluster Partition Agreement Metrics
//
// Compares two labelings of the same address set — typically two analysis
// runs over identical edges, or a run against hand-labeled ground truth.
// Addresses missing from either partition are ignored; labels themselves are
// opaque (cluster ids are only stable within one run, so agreement must be
// measured on co-membership, never on label equality).
//
// AdjustedRandIndex: 1 = identical partitions, 0 = random agreement,
// negative = worse than random.
// VariationOfInformation: information-theoretic distance, 0 = identical.

// contingency builds the co-occurrence matrix between two address → label
// partitions over their common addresses.
func contingency(a, b map[string]int) (nij [][]int, rowSums, colSums []int, n int) {
	aIndex := make(map[int]int)
	bIndex := make(map[int]int)

	for addr, la := range a {
		lb, ok := b[addr]
		if !ok {
			continue
		}
		if _, seen := aIndex[la]; !seen {
			aIndex[la] = len(aIndex)
		}
		if _, seen := bIndex[lb]; !seen {
			bIndex[lb] = len(bIndex)
		}
		n++
	}
	if n == 0 {
		return nil, nil, nil, 0
	}

	nij = make([][]int, len(aIndex))
	for i := range nij {
		nij[i] = make([]int, len(bIndex))
	}
	for addr, la := range a {
		lb, ok := b[addr]
		if !ok {
			continue
		}
		nij[aIndex[la]][bIndex[lb]]++
	}

	rowSums = make([]int, len(aIndex))
	colSums = make([]int, len(bIndex))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}
	return nij, rowSums, colSums, n
}

// AdjustedRandIndex computes the chance-corrected Rand index between two
// address → cluster-label partitions.
func AdjustedRandIndex(a, b map[string]int) float64 {
	nij, rowSums, colSums, n := contingency(a, b)
	if n < 2 {
		return 0.0
	}

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}
	sumAiC2 := 0.0
	for _, v := range rowSums {
		sumAiC2 += comb2(v)
	}
	sumBjC2 := 0.0
	for _, v := range colSums {
		sumBjC2 += comb2(v)
	}

	nC2 := comb2(n)
	if nC2 == 0 {
		return 0.0
	}

	expected := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denom := maxIndex - expected
	if math.Abs(denom) < 1e-12 {
		return 1.0 // both partitions are all-singletons or all-one-cluster
	}
	return (sumNijC2 - expected) / denom
}

// VariationOfInformation computes the VI distance between two
// address → cluster-label partitions. Lower is better; 0 = identical.
func VariationOfInformation(a, b map[string]int) float64 {
	nij, rowSums, colSums, n := contingency(a, b)
	if n < 2 {
		return 0.0
	}
	nf := float64(n)

	vi := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] == 0 {
				continue
			}
			pij := float64(nij[i][j]) / nf
			// H(A|B) term
			if colSums[j] > 0 {
				vi -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
			// H(B|A) term
			if rowSums[i] > 0 {
				vi -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}
	return vi
}

// comb2 computes C(n, 2).
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
