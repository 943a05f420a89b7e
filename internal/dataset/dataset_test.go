package dataset

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func samplePosts() *Dataset {
	return FromRecords([]Record{
		{ColID: "a", ColTitle: "MRT breakdown", ColVotes: 10},
		{ColID: "b", ColTitle: "Best laksa", ColVotes: 3},
		{ColID: "c", ColTitle: nil, ColVotes: math.NaN()},
	})
}

func TestFromRecordsSchema(t *testing.T) {
	d := samplePosts()
	if d.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", d.Len())
	}
	want := []string{ColID, ColTitle, ColVotes}
	if diff := cmp.Diff(want, d.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, d.Index()); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendRowBackfillsNewColumns(t *testing.T) {
	d := samplePosts()
	d.AppendRow(Record{ColID: "d", ColURL: "https://example.com"})

	if !d.Has(ColURL) {
		t.Fatal("expected url column to be added")
	}
	if v := d.Get(0, ColURL); v != nil {
		t.Errorf("expected nil backfill, got %v", v)
	}
	if d.IndexAt(3) != 3 {
		t.Errorf("expected index label 3, got %d", d.IndexAt(3))
	}
}

func TestFilterKeepsIndexLabels(t *testing.T) {
	d := samplePosts()
	out := d.Filter(func(i int) bool { return i != 1 })

	if diff := cmp.Diff([]int{0, 2}, out.Index()); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	if got, _ := out.String(1, ColID); got != "c" {
		t.Errorf("expected row c to follow row a, got %q", got)
	}
	if d.Len() != 3 {
		t.Error("filter must not modify the source dataset")
	}

	out.ResetIndex()
	if diff := cmp.Diff([]int{0, 1}, out.Index()); diff != "" {
		t.Errorf("reset index mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingValues(t *testing.T) {
	d := samplePosts()
	if _, ok := d.String(2, ColTitle); ok {
		t.Error("expected nil title to be missing")
	}
	if _, ok := d.Float(2, ColVotes); ok {
		t.Error("expected NaN votes to be missing")
	}
	if v, ok := d.Float(0, ColVotes); !ok || v != 10 {
		t.Errorf("expected 10 votes, got %v (%v)", v, ok)
	}
	if !IsBlank("   ") || IsBlank("x") {
		t.Error("IsBlank mismatch")
	}
}

func TestStringify(t *testing.T) {
	cases := map[any]string{
		nil:   "nan",
		"x":   "x",
		1.5:   "1.5",
		42:    "42",
		true:  "true",
	}
	for in, want := range cases {
		if got := Stringify(in); got != want {
			t.Errorf("Stringify(%v) = %q, want %q", in, got, want)
		}
	}
	if got := Stringify(math.NaN()); got != "nan" {
		t.Errorf("expected NaN to stringify as nan, got %q", got)
	}
}

func TestSetColumnLengthMismatch(t *testing.T) {
	d := samplePosts()
	if err := d.SetColumn("x", []any{1}); err == nil {
		t.Error("expected error for wrong column length")
	}
	if err := d.SetColumn("x", []any{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Get(2, "x") != 3 {
		t.Errorf("expected 3, got %v", d.Get(2, "x"))
	}
}

func TestGroupBy(t *testing.T) {
	d := FromRecords([]Record{
		{ColDomain: "Transport"},
		{ColDomain: "Housing"},
		{ColDomain: "Transport"},
		{ColDomain: nil},
	})
	groups := d.GroupBy(ColDomain)
	want := []Group{
		{Key: "Housing", Rows: []int{1}},
		{Key: "Transport", Rows: []int{0, 2}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestEqual(t *testing.T) {
	a := samplePosts()
	b := a.Clone()
	if !a.Equal(b) {
		t.Error("expected clone to be equal")
	}
	b.Set(0, ColTitle, "changed")
	if a.Equal(b) {
		t.Error("expected modified clone to differ")
	}
}
