package insight

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/sentiment"
)

// Engagement writes KeyEngagement = log1p(votes) + log1p(comments) and
// KeySentimentInfluence = sentiment * engagement for every post. Missing
// counts count as zero. It has no upstream dependency.
type Engagement struct {
	Inner           Source
	VotesColumn     string
	CommentsColumn  string
	SentimentColumn string
	log             *zap.Logger
}

// WithEngagement returns a Decorator adding Engagement.
func WithEngagement(log *zap.Logger) Decorator {
	return func(inner Source) Source { return NewEngagement(inner, log) }
}

// NewEngagement wraps inner.
func NewEngagement(inner Source, log *zap.Logger) *Engagement {
	return &Engagement{
		Inner:           inner,
		VotesColumn:     dataset.ColVotes,
		CommentsColumn:  dataset.ColComments,
		SentimentColumn: dataset.ColSentiment,
		log:             orNop(log),
	}
}

func (e *Engagement) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := e.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	d := in.Posts
	n := d.Len()
	// Absent columns read as NaN and score zero.
	warnMissing(e.log, "engagement", d, e.VotesColumn, e.CommentsColumn, e.SentimentColumn)

	votes := floatColumn(d, e.VotesColumn)
	comments := floatColumn(d, e.CommentsColumn)
	sent := floatColumn(d, e.SentimentColumn)
	engagement := make([]float64, n)
	influence := make([]float64, n)
	for i := 0; i < n; i++ {
		engagement[i] = engagementProxy(votes[i], comments[i])
		influence[i] = zeroIfNaN(sent[i]) * engagement[i]
	}
	ins[KeyEngagement] = engagement
	ins[KeySentimentInfluence] = influence
	return ins, nil
}

// engagementProxy damps large counts; negative counts are treated as zero.
func engagementProxy(votes, comments float64) float64 {
	return math.Log1p(math.Max(zeroIfNaN(votes), 0)) + math.Log1p(math.Max(zeroIfNaN(comments), 0))
}

// Importance writes KeyImportance = engagement + |min(influence, 0)|, so
// widely engaged negative posts rank highest.
//
// It reads KeyEngagement and KeySentimentInfluence and must wrap an
// Engagement decorator; without them it returns a MissingDependencyError.
type Importance struct {
	Inner Source
}

// WithImportance returns a Decorator adding Importance.
func WithImportance() Decorator {
	return func(inner Source) Source { return &Importance{Inner: inner} }
}

func (m *Importance) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := m.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	engagement, okE := ins.Floats(KeyEngagement)
	influence, okI := ins.Floats(KeySentimentInfluence)
	var missing []string
	if !okE {
		missing = append(missing, KeyEngagement)
	}
	if !okI {
		missing = append(missing, KeySentimentInfluence)
	}
	if len(missing) > 0 {
		return nil, &MissingDependencyError{Decorator: "importance", Keys: missing}
	}

	importance := make([]float64, len(engagement))
	for i := range importance {
		importance[i] = engagement[i] + math.Abs(math.Min(influence[i], 0))
	}
	ins[KeyImportance] = importance
	return ins, nil
}

// DeveloperImportance writes KeyImportance from the raw counts and two
// sentiment scores: (log1p(votes) + log1p(comments)) * (1 + mean(|a|, |b|)).
// It computes its own engagement proxy and depends on no other decorator.
type DeveloperImportance struct {
	Inner          Source
	VotesColumn    string
	CommentsColumn string
	ScoreA         string
	ScoreB         string
	log            *zap.Logger
}

// WithDeveloperImportance returns a Decorator adding DeveloperImportance
// over the model and lexicon sentiment columns.
func WithDeveloperImportance(log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &DeveloperImportance{
			Inner:          inner,
			VotesColumn:    dataset.ColVotes,
			CommentsColumn: dataset.ColComments,
			ScoreA:         dataset.ColSentiment,
			ScoreB:         sentiment.ColLexiconSentiment,
			log:            orNop(log),
		}
	}
}

func (m *DeveloperImportance) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := m.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	d := in.Posts
	warnMissing(m.log, "developer_importance", d, m.VotesColumn, m.CommentsColumn, m.ScoreA, m.ScoreB)

	votes := floatColumn(d, m.VotesColumn)
	comments := floatColumn(d, m.CommentsColumn)
	a := floatColumn(d, m.ScoreA)
	b := floatColumn(d, m.ScoreB)
	importance := make([]float64, d.Len())
	for i := range importance {
		intensity := (math.Abs(zeroIfNaN(a[i])) + math.Abs(zeroIfNaN(b[i]))) / 2
		importance[i] = engagementProxy(votes[i], comments[i]) * (1 + intensity)
	}
	ins[KeyImportance] = importance
	return ins, nil
}
