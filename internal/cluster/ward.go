package cluster

import "math"

// merge records one agglomeration step.
type merge struct {
	a, b     int     // node ids merged; ids >= n are earlier merges
	distance float64 // Euclidean merge height
	size     int
}

// sqDist returns the full symmetric matrix of squared Euclidean distances.
func sqDist(points [][]float64) [][]float64 {
	n := len(points)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for k := range points[i] {
				diff := points[i][k] - points[j][k]
				s += diff * diff
			}
			d[i][j], d[j][i] = s, s
		}
	}
	return d
}

// wardLinkage performs Ward agglomeration with the Lance-Williams update
// and returns the n-1 merges in order. Node ids follow the usual
// dendrogram convention: points are 0..n-1, the merge at step s is n+s.
func wardLinkage(points [][]float64) []merge {
	n := len(points)
	if n < 2 {
		return nil
	}
	d := sqDist(points)

	// slot i holds the cluster currently stored at row i of d.
	node := make([]int, n)
	size := make([]int, n)
	alive := make([]bool, n)
	for i := range node {
		node[i], size[i], alive[i] = i, 1, true
	}

	merges := make([]merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj, best := -1, -1, math.MaxFloat64
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if alive[j] && d[i][j] < best {
					bi, bj, best = i, j, d[i][j]
				}
			}
		}

		ni, nj := float64(size[bi]), float64(size[bj])
		for k := 0; k < n; k++ {
			if !alive[k] || k == bi || k == bj {
				continue
			}
			nk := float64(size[k])
			v := ((nk+ni)*d[bi][k] + (nk+nj)*d[bj][k] - nk*best) / (nk + ni + nj)
			d[bi][k], d[k][bi] = v, v
		}

		merges = append(merges, merge{
			a:        node[bi],
			b:        node[bj],
			distance: math.Sqrt(best),
			size:     size[bi] + size[bj],
		})
		node[bi] = n + step
		size[bi] += size[bj]
		alive[bj] = false
	}
	return merges
}

// cutK replays merges until k clusters remain and labels each point.
func cutK(merges []merge, n, k int) []int {
	if k < 1 {
		k = 1
	}
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	for step := 0; step < len(merges) && n-step > k; step++ {
		m := merges[step]
		id := n + step
		parent[find(parent, m.a)] = id
		parent[find(parent, m.b)] = id
	}
	roots := make([]int, n)
	for i := range roots {
		roots[i] = find(parent, i)
	}
	return relabel(roots)
}

// cutThreshold merges only while the merge height is at most threshold.
func cutThreshold(merges []merge, n int, threshold float64) []int {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	for step, m := range merges {
		if m.distance > threshold {
			break
		}
		id := n + step
		parent[find(parent, m.a)] = id
		parent[find(parent, m.b)] = id
	}
	roots := make([]int, n)
	for i := range roots {
		roots[i] = find(parent, i)
	}
	return relabel(roots)
}

func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

// relabel maps arbitrary labels to 0..k-1 in order of first appearance.
func relabel(labels []int) []int {
	ids := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		out[i] = id
	}
	return out
}
