// Package cluster groups numeric feature vectors with k-means or Ward
// linkage and labels groups of texts by their most frequent words.
package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

// Method selects the clustering algorithm.
type Method string

const (
	MethodKMeans Method = "kmeans"
	MethodWard   Method = "ward"
)

// DefaultMaxIter bounds k-means refinement.
const DefaultMaxIter = 100

// Assign clusters points into k groups and returns one label per point in
// 0..k-1. Labels are numbered in order of first appearance, so equal
// inputs always produce equal labels.
func Assign(method Method, points [][]float64, k int, seed uint64) ([]int, error) {
	if k < 1 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", k)
	}
	if len(points) < k {
		return nil, fmt.Errorf("%d points cannot form %d clusters", len(points), k)
	}
	switch method {
	case MethodKMeans, "":
		return KMeans(points, k, seed, DefaultMaxIter), nil
	case MethodWard:
		return Ward(points, k), nil
	}
	return nil, fmt.Errorf("unknown cluster method %q", method)
}

// Ward clusters points by Ward linkage cut into k groups.
func Ward(points [][]float64, k int) []int {
	if len(points) == 1 {
		return []int{0}
	}
	return cutK(wardLinkage(points), len(points), k)
}

// WardThreshold clusters points by Ward linkage, merging only below the
// given Euclidean height.
func WardThreshold(points [][]float64, threshold float64) []int {
	if len(points) == 1 {
		return []int{0}
	}
	return cutThreshold(wardLinkage(points), len(points), threshold)
}

// KMeans runs Lloyd's algorithm from a k-means++ seeding.
func KMeans(points [][]float64, k int, seed uint64, maxIter int) []int {
	n := len(points)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	centroids := seedPlusPlus(points, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			best, bestD := 0, math.MaxFloat64
			for c, ctr := range centroids {
				if d := sq(p, ctr); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		centroids = recenter(points, labels, centroids)
	}
	return relabel(labels)
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{clone(points[rng.IntN(len(points))])}
	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = math.MaxFloat64
			for _, c := range centroids {
				dist[i] = math.Min(dist[i], sq(p, c))
			}
			total += dist[i]
		}
		if total == 0 {
			// Every point coincides with a centroid; take the next unused one.
			centroids = append(centroids, clone(points[len(centroids)%len(points)]))
			continue
		}
		r := rng.Float64() * total
		next := len(points) - 1
		for i, d := range dist {
			r -= d
			if r <= 0 {
				next = i
				break
			}
		}
		centroids = append(centroids, clone(points[next]))
	}
	return centroids
}

// recenter moves each centroid to its members' mean. An empty cluster
// keeps its previous centroid.
func recenter(points [][]float64, labels []int, prev [][]float64) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for j, v := range p {
			sums[c][j] += v
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			sums[c] = clone(prev[c])
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= float64(counts[c])
		}
	}
	return sums
}

// Standardize scales each column to zero mean and unit variance. Columns
// with zero variance become all zeros.
func Standardize(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	dim := len(rows[0])
	mean := make([]float64, dim)
	for _, r := range rows {
		for j, v := range r {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(rows))
	}
	std := make([]float64, dim)
	for _, r := range rows {
		for j, v := range r {
			std[j] += (v - mean[j]) * (v - mean[j])
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(len(rows)))
	}

	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, dim)
		for j, v := range r {
			if std[j] > 0 {
				out[i][j] = (v - mean[j]) / std[j]
			}
		}
	}
	return out
}

// Members groups point positions by label, ordered by label.
func Members(labels []int) [][]int {
	var groups [][]int
	for i, l := range labels {
		for len(groups) <= l {
			groups = append(groups, nil)
		}
		groups[l] = append(groups[l], i)
	}
	return groups
}

// Label names a group of texts by its three most frequent content words,
// falling back to the first text truncated to 50 characters.
func Label(texts []string) string {
	counts := make(map[string]int)
	for _, t := range texts {
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,!?:;\"'()-[]")
			if len(w) > 2 && !labelStopwords[w] {
				counts[w]++
			}
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > 3 {
		words = words[:3]
	}
	if len(words) > 0 {
		return strings.Join(words, " ")
	}
	if len(texts) == 0 {
		return ""
	}
	r := []rune(texts[0])
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r)
}

var labelStopwords = map[string]bool{
	"the": true, "are": true, "was": true, "were": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true, "can": true,
	"for": true, "with": true, "from": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "and": true, "but": true, "nor": true, "not": true,
	"yet": true, "both": true, "each": true, "every": true, "all": true, "any": true,
	"few": true, "more": true, "most": true, "other": true, "some": true, "such": true,
	"only": true, "own": true, "same": true, "than": true, "too": true, "very": true,
	"just": true, "how": true, "what": true, "which": true, "who": true, "whom": true,
	"this": true, "that": true, "these": true, "those": true, "its": true, "about": true,
	"out": true, "also": true, "like": true, "get": true, "again": true, "why": true,
	"unknown": true,
}

func sq(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
