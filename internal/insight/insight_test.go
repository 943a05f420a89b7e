package insight

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/sentiment"
)

// stubSource returns a copy of a fixed Insight.
type stubSource struct {
	ins Insight
}

func (s stubSource) ExtractInsights(context.Context, *Input) (Insight, error) {
	out := make(Insight, len(s.ins))
	for k, v := range s.ins {
		out[k] = v
	}
	return out, nil
}

func engagedPosts() *dataset.Dataset {
	return dataset.FromRecords([]dataset.Record{
		{dataset.ColDomain: "Transport", dataset.ColVotes: 10, dataset.ColComments: 5, dataset.ColSentiment: -0.8},
		{dataset.ColDomain: "Housing", dataset.ColVotes: 0, dataset.ColComments: 0, dataset.ColSentiment: 0.5},
		{dataset.ColDomain: "Transport", dataset.ColVotes: 3, dataset.ColComments: nil, dataset.ColSentiment: 0.4},
	})
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestImportanceAfterEngagement(t *testing.T) {
	src := Compose(NewBase(), WithEngagement(nil), WithImportance())
	ins, err := src.ExtractInsights(context.Background(), &Input{Posts: engagedPosts()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e0 := math.Log1p(10) + math.Log1p(5)
	e2 := math.Log1p(3)
	wantEngagement := []float64{e0, 0, e2}
	if diff := cmp.Diff(wantEngagement, ins[KeyEngagement], approx); diff != "" {
		t.Errorf("engagement mismatch (-want +got):\n%s", diff)
	}
	wantImportance := []float64{e0 + 0.8*e0, 0, e2}
	if diff := cmp.Diff(wantImportance, ins[KeyImportance], approx); diff != "" {
		t.Errorf("importance mismatch (-want +got):\n%s", diff)
	}
	if ins[KeyPostCount] != 3 {
		t.Errorf("base keys must survive decoration, got %v", ins[KeyPostCount])
	}
}

func TestImportanceWithoutEngagementFails(t *testing.T) {
	src := Compose(NewBase(), WithImportance())
	_, err := src.ExtractInsights(context.Background(), &Input{Posts: engagedPosts()})

	var dep *MissingDependencyError
	if !errors.As(err, &dep) {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
	if diff := cmp.Diff([]string{KeyEngagement, KeySentimentInfluence}, dep.Keys); diff != "" {
		t.Errorf("missing keys mismatch (-want +got):\n%s", diff)
	}
}

func TestImportanceComposedInWrongOrderFails(t *testing.T) {
	// Engagement wraps Importance, so Importance runs first and sees nothing.
	src := Compose(NewBase(), WithImportance(), WithEngagement(nil))
	_, err := src.ExtractInsights(context.Background(), &Input{Posts: engagedPosts()})
	var dep *MissingDependencyError
	if !errors.As(err, &dep) {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
}

func TestImportanceAgainstStub(t *testing.T) {
	stub := stubSource{ins: Insight{
		KeyEngagement:         []float64{2, 1},
		KeySentimentInfluence: []float64{-1.5, 0.5},
	}}
	ins, err := (&Importance{Inner: stub}).ExtractInsights(context.Background(), &Input{Posts: dataset.New()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{3.5, 1}, ins[KeyImportance], approx); diff != "" {
		t.Errorf("importance mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoratorKeepsInnerKeys(t *testing.T) {
	stub := stubSource{ins: Insight{"custom": 42, KeyPostCount: 3}}
	ins, err := NewEngagement(stub, nil).ExtractInsights(context.Background(), &Input{Posts: engagedPosts()})
	if err != nil {
		t.Fatal(err)
	}
	if ins["custom"] != 42 {
		t.Errorf("inner key lost: %v", ins)
	}
}

func TestDeveloperImportanceNeedsNoEngagement(t *testing.T) {
	posts := dataset.FromRecords([]dataset.Record{
		{dataset.ColVotes: 3, dataset.ColComments: 1, dataset.ColSentiment: -0.5, sentiment.ColLexiconSentiment: -0.7},
		{dataset.ColVotes: 0, dataset.ColComments: 0, dataset.ColSentiment: 0.9, sentiment.ColLexiconSentiment: 0.9},
	})
	src := Compose(NewBase(), WithDeveloperImportance(nil))
	ins, err := src.ExtractInsights(context.Background(), &Input{Posts: posts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{(math.Log1p(3) + math.Log1p(1)) * 1.6, 0}
	if diff := cmp.Diff(want, ins[KeyImportance], approx); diff != "" {
		t.Errorf("importance mismatch (-want +got):\n%s", diff)
	}
}

func TestEngagementMissingColumnsWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	posts := dataset.FromRecords([]dataset.Record{{dataset.ColText: "a"}, {dataset.ColText: "b"}})

	src := Compose(NewBase(), WithEngagement(zap.New(core)), WithImportance())
	ins, err := src.ExtractInsights(context.Background(), &Input{Posts: posts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 0}, ins[KeyImportance]); diff != "" {
		t.Errorf("expected zero importance (-want +got):\n%s", diff)
	}
	if logs.FilterMessage("insight input columns missing, writing empty values").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

func TestDiscrepancyLevels(t *testing.T) {
	posts := dataset.FromRecords([]dataset.Record{
		{dataset.ColSentiment: 0.0, sentiment.ColLexiconSentiment: 0.1},
		{dataset.ColSentiment: 0.0, sentiment.ColLexiconSentiment: -0.3},
		{dataset.ColSentiment: 0.5, sentiment.ColLexiconSentiment: -0.1},
		{dataset.ColSentiment: 1.0, sentiment.ColLexiconSentiment: -0.5},
		{dataset.ColSentiment: nil, sentiment.ColLexiconSentiment: 0.2},
	})
	src := Compose(NewBase(), WithDiscrepancy(DefaultThresholds(), nil))
	ins, err := src.ExtractInsights(context.Background(), &Input{Posts: posts})
	if err != nil {
		t.Fatal(err)
	}
	wantLevels := []string{DiscrepancyNone, DiscrepancyLow, DiscrepancyMed, DiscrepancyHigh, ""}
	if diff := cmp.Diff(wantLevels, ins[KeyDiscrepancyLevel]); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}
	deltas, _ := ins.Floats(KeyDiscrepancyDelta)
	if math.Abs(deltas[3]-1.5) > 1e-9 || !math.IsNaN(deltas[4]) {
		t.Errorf("unexpected magnitudes %v", deltas)
	}
}

func TestEnrich(t *testing.T) {
	posts := dataset.FromRecords([]dataset.Record{
		{dataset.ColDomain: "Transport"},
		{dataset.ColDomain: "Housing"},
	})
	ins := Insight{
		KeyImportance:       []float64{1.5, math.NaN()},
		KeyDiscrepancyLevel: []string{"HIGH", ""},
		KeyForecast:         map[string]float64{"Transport": -0.4},
		KeyPostCount:        2,
		"misaligned":        []float64{1},
	}
	out := Enrich(posts, ins)

	if diff := cmp.Diff([]any{1.5, nil}, out.Column(KeyImportance)); diff != "" {
		t.Errorf("importance column mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"HIGH", nil}, out.Column(KeyDiscrepancyLevel)); diff != "" {
		t.Errorf("level column mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{-0.4, nil}, out.Column(KeyForecast)); diff != "" {
		t.Errorf("forecast column mismatch (-want +got):\n%s", diff)
	}
	if out.Has(KeyPostCount) || out.Has("misaligned") {
		t.Error("only per-row keys should become columns")
	}
	if posts.Has(KeyImportance) {
		t.Error("input dataset must not be modified")
	}
}

func TestBuildDefaultChain(t *testing.T) {
	posts := engagedPosts()
	ins, err := Build(DefaultOptions(), nil).ExtractInsights(context.Background(), &Input{Posts: posts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{KeyPostCount, KeyEngagement, KeyImportance, KeyDiscrepancyLevel,
		KeyForecast, KeyAnomalies, KeyClusters} {
		if _, ok := ins[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if _, ok := ins[KeySummaries]; ok {
		t.Error("summaries need a provider")
	}
}

func TestBaseRequiresPosts(t *testing.T) {
	if _, err := NewBase().ExtractInsights(context.Background(), &Input{}); err == nil {
		t.Error("expected error without posts")
	}
}

func TestAggregatesDropsPerRowKeys(t *testing.T) {
	ins := Insight{
		KeyPostCount:  2,
		KeyImportance: []float64{1, math.NaN()},
		KeyCluster:    []string{"a", ""},
		KeyForecast:   map[string]float64{"Transport": -0.2},
		KeyAnomalies:  map[string][]string{"Transport": {}},
	}
	got := ins.Aggregates()
	want := map[string]any{
		KeyPostCount: 2,
		KeyForecast:  map[string]float64{"Transport": -0.2},
		KeyAnomalies: map[string][]string{"Transport": {}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("aggregates mismatch (-want +got):\n%s", diff)
	}
}
