// Package vector provides the similarity math used to line up result
// columns that hold the same data under different names.
// The cosine code was taken from:
// https://github.com/kabychow/go-cosinesimilarity
package vector

import (
	"math"
	"slices"
)

// Data represents data that can be vectorized.
type Data interface {
	Vector() []float64
}

// =============================================================================

// SimilarityResult represents the result of performing a similarity check
// between two vectors.
type SimilarityResult struct {
	Target     Data
	DataPoint  Data
	Similarity float64
	Percentage float64
}

// Similarity calculates the similarity between the target and every data
// point.
func Similarity(target Data, dataPoints ...Data) []SimilarityResult {
	results := make([]SimilarityResult, len(dataPoints))

	te := target.Vector()

	for i, dp := range dataPoints {
		similarity := CosineSimilarity(te, dp.Vector())

		results[i] = SimilarityResult{
			Target:     target,
			DataPoint:  dp,
			Similarity: similarity,
			Percentage: similarity * 100,
		}
	}

	return results
}

// CosineSimilarity takes two vectors and computes the similarity between
// them using a cosine algorithm. Vectors of different length are compared
// over their common prefix.
func CosineSimilarity(x, y []float64) float64 {
	n := min(len(x), len(y))

	var sum, s1, s2 float64

	for i := range n {
		sum += x[i] * y[i]
		s1 += x[i] * x[i]
		s2 += y[i] * y[i]
	}

	if s1 == 0 || s2 == 0 {
		return 0.0
	}

	return sum / (math.Sqrt(s1) * math.Sqrt(s2))
}

// Profile returns the values sorted ascending, shifted by their mean, and
// scaled to unit length. Two columns holding the same numbers in any row
// order produce the same profile.
func Profile(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	p := slices.Clone(values)
	slices.Sort(p)

	var mean float64
	for _, v := range p {
		mean += v
	}
	mean /= float64(len(p))

	var norm float64
	for i := range p {
		p[i] -= mean
		norm += p[i] * p[i]
	}

	if norm == 0 {
		return p
	}

	norm = math.Sqrt(norm)
	for i := range p {
		p[i] /= norm
	}

	return p
}
