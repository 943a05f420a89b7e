// Package insight derives analytics from classified posts through a chain
// of decorators.
//
// Every decorator wraps one Source. Its ExtractInsights first asks the
// wrapped Source for an Insight and then adds its own keys, so a
// decorator only sees keys written by decorators nested inside it.
// Decorators that read another decorator's keys document the dependency
// and return a MissingDependencyError when it is not met. Decorators
// whose input columns are absent log a warning and write empty values.
//
// Per-row keys hold a []float64 (NaN for no value) or []string ("" for no
// value) aligned with Input.Posts. Per-category keys hold maps keyed by
// the category value.
package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// Keys written by the decorators in this package.
const (
	KeyPostCount          = "post_count"
	KeyCategoryCounts     = "category_counts"
	KeyEngagement         = dataset.ColEngagement
	KeySentimentInfluence = "sentiment_influence"
	KeyImportance         = "importance_score"
	KeyDiscrepancyLevel   = "sentiment_discrepancy"
	KeyDiscrepancyDelta   = "sentiment_discrepancy_magnitude"
	KeyForecast           = "sentiment_forecast"
	KeyAnomalies          = "sentiment_anomalies"
	KeyClusters           = "clusters"
	KeyCluster            = "cluster"
	KeySummaries          = "category_summaries"
	KeyAspects            = "aspect_sentiments"
	KeyPolls              = "polls"
)

// History columns.
const (
	ColDate      = "date"
	ColCategory  = "category"
	ColSentiment = "sentiment"
)

// Insight is the analytics object built up by the chain.
type Insight map[string]any

// Floats returns a per-row float key.
func (in Insight) Floats(key string) ([]float64, bool) {
	v, ok := in[key].([]float64)
	return v, ok
}

// Strings returns a per-row string key.
func (in Insight) Strings(key string) ([]string, bool) {
	v, ok := in[key].([]string)
	return v, ok
}

// Keys returns the insight keys in sorted order.
func (in Insight) Keys() []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregates returns the per-category and whole-run keys, leaving out the
// per-row slices that Enrich turns into columns.
func (in Insight) Aggregates() map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v.(type) {
		case []float64, []string:
			continue
		}
		out[k] = v
	}
	return out
}

// Input is what the chain analyses.
type Input struct {
	// Posts are the classified posts, one row per post.
	Posts *dataset.Dataset
	// History holds past (date, category, sentiment) rows. When empty,
	// time-series decorators fall back to the posts' own timestamps.
	History *dataset.Dataset
}

// Source produces an Insight.
type Source interface {
	ExtractInsights(ctx context.Context, in *Input) (Insight, error)
}

// MissingDependencyError reports a decorator composed without the
// decorator that writes the keys it reads.
type MissingDependencyError struct {
	Decorator string
	Keys      []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("insight %s requires keys %s; compose it around the decorator that writes them",
		e.Decorator, strings.Join(e.Keys, ", "))
}

// Base counts posts overall and per category. It is the innermost Source
// of every chain.
type Base struct {
	CategoryColumn string
}

// NewBase creates a Base grouping by the domain column.
func NewBase() *Base {
	return &Base{CategoryColumn: dataset.ColDomain}
}

func (b *Base) ExtractInsights(_ context.Context, in *Input) (Insight, error) {
	if in == nil || in.Posts == nil {
		return nil, fmt.Errorf("insight: no posts")
	}
	counts := make(map[string]int)
	for _, g := range in.Posts.GroupBy(b.CategoryColumn) {
		counts[g.Key] = len(g.Rows)
	}
	return Insight{
		KeyPostCount:      in.Posts.Len(),
		KeyCategoryCounts: counts,
	}, nil
}

// Decorator wraps a Source.
type Decorator func(Source) Source

// Compose wraps base with decorators so the first decorator is innermost
// and runs first.
func Compose(base Source, decorators ...Decorator) Source {
	s := base
	for _, d := range decorators {
		s = d(s)
	}
	return s
}

// floatColumn reads col as floats, NaN for missing or non-numeric values.
func floatColumn(d *dataset.Dataset, col string) []float64 {
	out := make([]float64, d.Len())
	for i := range out {
		v, ok := d.Float(i, col)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// zeroIfNaN replaces NaN with 0.
func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// warnMissing logs and reports whether any of cols is absent from d.
func warnMissing(log *zap.Logger, decorator string, d *dataset.Dataset, cols ...string) bool {
	missing := d.Missing(cols...)
	if len(missing) == 0 {
		return false
	}
	log.Warn("insight input columns missing, writing empty values",
		zap.String("decorator", decorator),
		zap.Strings("columns", missing))
	return true
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
