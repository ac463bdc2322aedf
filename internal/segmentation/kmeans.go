package segmentation

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// run is the outcome of one k-means initialization.
type run struct {
	labels     []int
	centroids  [][]float64
	inertia    float64
	iterations int
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// nearest returns the index of the closest centroid and the squared distance to it.
// Ties go to the lowest index.
func nearest(p []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// seedCentroids picks k initial centroids with greedy k-means++: each new centroid is
// the best of a few D²-weighted candidates.
func seedCentroids(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	trials := 2 + int(math.Log(float64(k)))

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(x[rng.IntN(n)]))

	closest := make([]float64, n)
	for i, p := range x {
		closest[i] = sqDist(p, centroids[0])
	}
	potential := floats.Sum(closest)

	for len(centroids) < k {
		bestCandidate, bestPotential := -1, math.Inf(1)
		var bestClosest []float64

		for t := 0; t < trials; t++ {
			cand := sampleWeighted(closest, potential, rng)
			next := make([]float64, n)
			for i, p := range x {
				next[i] = math.Min(closest[i], sqDist(p, x[cand]))
			}
			if pot := floats.Sum(next); pot < bestPotential {
				bestCandidate, bestPotential, bestClosest = cand, pot, next
			}
		}

		centroids = append(centroids, clone(x[bestCandidate]))
		closest, potential = bestClosest, bestPotential
	}
	return centroids
}

// sampleWeighted draws an index with probability proportional to weights.
// When every weight is zero it falls back to a uniform draw.
func sampleWeighted(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

// lloyd refines centroids until the total squared shift drops to tol or maxIter is hit.
func lloyd(x [][]float64, centroids [][]float64, maxIter int, tol float64) run {
	n, k, dims := len(x), len(centroids), len(x[0])
	labels := make([]int, n)
	dists := make([]float64, n)

	iter := 0
	for iter < maxIter {
		iter++
		for i, p := range x {
			labels[i], dists[i] = nearest(p, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range x {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}

		relocateEmpty(x, labels, dists, sums, counts)

		shift := 0.0
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centroids[c], sums[c])
			centroids[c] = sums[c]
		}
		if shift <= tol {
			break
		}
	}

	inertia := 0.0
	for i, p := range x {
		labels[i], dists[i] = nearest(p, centroids)
		inertia += dists[i]
	}

	return run{labels: labels, centroids: centroids, inertia: inertia, iterations: iter}
}

// relocateEmpty moves each empty cluster onto the point farthest from its current
// centroid, taking that point out of its old cluster.
func relocateEmpty(x [][]float64, labels []int, dists []float64, sums [][]float64, counts []int) {
	taken := make(map[int]bool)
	for c := range counts {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, d := range dists {
			if taken[i] || counts[labels[i]] <= 1 {
				continue
			}
			if d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}
		taken[far] = true

		old := labels[far]
		floats.Sub(sums[old], x[far])
		counts[old]--

		labels[far] = c
		sums[c] = clone(x[far])
		counts[c] = 1
		dists[far] = 0
	}
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
