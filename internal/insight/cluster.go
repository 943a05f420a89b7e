package insight

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/cluster"
	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/sentiment"
)

// Group is one cluster inside a category.
type Group struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	// Members are the posts' dataset index labels.
	Members []int `json:"members"`
}

// Cluster groups each category's posts by their standardized sentiment
// features. It writes KeyClusters (category to groups) and the per-row
// KeyCluster name "<category>#<id>". Categories with fewer posts than K
// are skipped and their rows get "".
type Cluster struct {
	Inner          Source
	K              int
	Method         cluster.Method
	Seed           uint64
	Features       []string
	CategoryColumn string
	TextColumn     string
	log            *zap.Logger
}

// WithCluster returns a Decorator adding Cluster over the model and
// lexicon sentiment scores.
func WithCluster(k int, method cluster.Method, log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &Cluster{
			Inner:          inner,
			K:              k,
			Method:         method,
			Seed:           1,
			Features:       []string{dataset.ColSentiment, sentiment.ColLexiconSentiment},
			CategoryColumn: dataset.ColDomain,
			TextColumn:     dataset.ColText,
			log:            orNop(log),
		}
	}
}

func (c *Cluster) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := c.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	d := in.Posts
	rowCluster := make([]string, d.Len())
	groups := make(map[string][]Group)
	ins[KeyClusters] = groups
	ins[KeyCluster] = rowCluster

	features := c.Features
	if warnMissing(c.log, "cluster", d, append([]string{c.CategoryColumn}, c.Features...)...) {
		features = nil
		for _, f := range c.Features {
			if d.Has(f) {
				features = append(features, f)
			}
		}
		if len(features) == 0 || !d.Has(c.CategoryColumn) {
			return ins, nil
		}
	}

	for _, g := range d.GroupBy(c.CategoryColumn) {
		var rows []int
		var points [][]float64
		for _, r := range g.Rows {
			p, ok := featureVector(d, r, features)
			if ok {
				rows = append(rows, r)
				points = append(points, p)
			}
		}
		if len(points) < c.K {
			c.log.Debug("clustering skipped, group smaller than cluster count",
				zap.String("category", g.Key), zap.Int("rows", len(points)), zap.Int("k", c.K))
			continue
		}

		labels, err := cluster.Assign(c.Method, cluster.Standardize(points), c.K, c.Seed)
		if err != nil {
			return nil, fmt.Errorf("insight cluster %s: %w", g.Key, err)
		}
		for id, members := range cluster.Members(labels) {
			grp := Group{ID: id}
			var texts []string
			for _, m := range members {
				r := rows[m]
				grp.Members = append(grp.Members, d.IndexAt(r))
				rowCluster[r] = fmt.Sprintf("%s#%d", g.Key, id)
				if t, ok := d.String(r, c.TextColumn); ok {
					texts = append(texts, t)
				}
			}
			grp.Label = cluster.Label(texts)
			groups[g.Key] = append(groups[g.Key], grp)
		}
	}
	return ins, nil
}

func featureVector(d *dataset.Dataset, row int, cols []string) ([]float64, bool) {
	p := make([]float64, len(cols))
	for j, col := range cols {
		v, ok := d.Float(row, col)
		if !ok {
			return nil, false
		}
		p[j] = v
	}
	return p, true
}

// Discrepancy levels.
const (
	DiscrepancyNone = "none"
	DiscrepancyLow  = "LOW"
	DiscrepancyMed  = "MED"
	DiscrepancyHigh = "HIGH"
)

// Thresholds are ascending cut-offs on the absolute score difference.
type Thresholds struct {
	Low, Med, High float64
}

// DefaultThresholds returns 0.2, 0.5 and 0.8.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.2, Med: 0.5, High: 0.8}
}

// Level classifies an absolute difference.
func (t Thresholds) Level(delta float64) string {
	switch {
	case delta >= t.High:
		return DiscrepancyHigh
	case delta >= t.Med:
		return DiscrepancyMed
	case delta >= t.Low:
		return DiscrepancyLow
	}
	return DiscrepancyNone
}

// Discrepancy compares two sentiment score columns row by row and writes
// the level under KeyDiscrepancyLevel and |a-b| under KeyDiscrepancyDelta.
// Rows missing either score get "" and NaN.
type Discrepancy struct {
	Inner      Source
	ScoreA     string
	ScoreB     string
	Thresholds Thresholds
	log        *zap.Logger
}

// WithDiscrepancy returns a Decorator comparing the model and lexicon
// sentiment columns.
func WithDiscrepancy(t Thresholds, log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &Discrepancy{
			Inner:      inner,
			ScoreA:     dataset.ColSentiment,
			ScoreB:     sentiment.ColLexiconSentiment,
			Thresholds: t,
			log:        orNop(log),
		}
	}
}

func (x *Discrepancy) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := x.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	d := in.Posts
	levels := make([]string, d.Len())
	deltas := nanSlice(d.Len())
	ins[KeyDiscrepancyLevel] = levels
	ins[KeyDiscrepancyDelta] = deltas
	if warnMissing(x.log, "discrepancy", d, x.ScoreA, x.ScoreB) {
		return ins, nil
	}

	for i := 0; i < d.Len(); i++ {
		a, okA := d.Float(i, x.ScoreA)
		b, okB := d.Float(i, x.ScoreB)
		if !okA || !okB {
			continue
		}
		delta := a - b
		if delta < 0 {
			delta = -delta
		}
		deltas[i] = delta
		levels[i] = x.Thresholds.Level(delta)
	}
	return ins, nil
}
