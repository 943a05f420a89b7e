package cluster

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var blobs = [][]float64{
	{0, 0}, {0.1, 0.2}, {0.2, 0.1},
	{10, 10}, {10.1, 9.9}, {9.8, 10.2},
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	labels := KMeans(blobs, 2, 42, DefaultMaxIter)
	want := []int{0, 0, 0, 1, 1, 1}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestKMeansDeterministic(t *testing.T) {
	a := KMeans(blobs, 3, 7, DefaultMaxIter)
	b := KMeans(blobs, 3, 7, DefaultMaxIter)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed should give same labels (-first +second):\n%s", diff)
	}
}

func TestKMeansIdenticalPoints(t *testing.T) {
	pts := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	labels := KMeans(pts, 2, 1, DefaultMaxIter)
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(labels))
	}
}

func TestAssign(t *testing.T) {
	for _, m := range []Method{MethodKMeans, MethodWard} {
		labels, err := Assign(m, blobs, 2, 1)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if labels[0] == labels[3] {
			t.Errorf("%s: blobs should be split, got %v", m, labels)
		}
	}
	if _, err := Assign(MethodKMeans, blobs[:1], 2, 1); err == nil {
		t.Error("expected error when points < k")
	}
	if _, err := Assign("spectral", blobs, 2, 1); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestStandardize(t *testing.T) {
	out := Standardize([][]float64{{1, 5}, {3, 5}})
	want := [][]float64{{-1, 0}, {1, 0}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(out[i][j]-want[i][j]) > 1e-12 {
				t.Errorf("out[%d][%d] = %f, want %f", i, j, out[i][j], want[i][j])
			}
		}
	}
}

func TestMembers(t *testing.T) {
	got := Members([]int{0, 1, 0, 2})
	if diff := cmp.Diff([][]int{{0, 2}, {1}, {3}}, got); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestLabel(t *testing.T) {
	texts := []string{
		"MRT breakdown at Jurong",
		"Another MRT breakdown this morning",
		"Jurong line delays",
	}
	if got := Label(texts); got != "breakdown jurong mrt" {
		t.Errorf("unexpected label %q", got)
	}
	if got := Label([]string{"a an"}); got != "a an" {
		t.Errorf("expected fallback to first text, got %q", got)
	}
}
