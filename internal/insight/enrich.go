package insight

import (
	"math"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/cluster"
	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
)

// Enrich returns a copy of posts with every per-row insight key added as
// a column, plus each category's forecast as a column keyed by the row's
// domain. NaN and "" become missing values.
func Enrich(posts *dataset.Dataset, ins Insight) *dataset.Dataset {
	out := posts.Clone()
	n := out.Len()
	for _, key := range ins.Keys() {
		var col []any
		switch v := ins[key].(type) {
		case []float64:
			if len(v) != n {
				continue
			}
			col = make([]any, n)
			for i, x := range v {
				if !math.IsNaN(x) {
					col[i] = x
				}
			}
		case []string:
			if len(v) != n {
				continue
			}
			col = make([]any, n)
			for i, s := range v {
				if s != "" {
					col[i] = s
				}
			}
		case map[string]float64:
			if !out.Has(dataset.ColDomain) {
				continue
			}
			col = make([]any, n)
			for i := range col {
				if cat, ok := out.String(i, dataset.ColDomain); ok {
					if f, ok := v[cat]; ok {
						col[i] = f
					}
				}
			}
		default:
			continue
		}
		_ = out.SetColumn(key, col)
	}
	return out
}

// Options selects and configures the decorators of a standard chain.
type Options struct {
	// Importance is "consumer" (engagement based) or "developer".
	Importance      string
	ForecastPeriods int
	AnomalyZ        float64
	Clusters        int
	ClusterMethod   cluster.Method
	Discrepancy     Thresholds
	// Provider enables the summary, aspect and poll decorators when set.
	Provider  llm.Provider
	Summarize bool
	Aspects   bool
	Polls     bool
}

// DefaultOptions returns the standard chain settings.
func DefaultOptions() Options {
	return Options{
		Importance:      "consumer",
		ForecastPeriods: 7,
		AnomalyZ:        DefaultZThreshold,
		Clusters:        3,
		ClusterMethod:   cluster.MethodKMeans,
		Discrepancy:     DefaultThresholds(),
		Summarize:       true,
	}
}

// Build composes the standard chain. Order matters: Importance must wrap
// Engagement.
func Build(opts Options, log *zap.Logger) Source {
	var decorators []Decorator
	if opts.Importance == "developer" {
		decorators = append(decorators, WithEngagement(log), WithDeveloperImportance(log))
	} else {
		decorators = append(decorators, WithEngagement(log), WithImportance())
	}
	decorators = append(decorators,
		WithDiscrepancy(opts.Discrepancy, log),
		WithForecast(opts.ForecastPeriods, log),
		WithAnomaly(opts.AnomalyZ, log),
	)
	if opts.Clusters > 0 {
		decorators = append(decorators, WithCluster(opts.Clusters, opts.ClusterMethod, log))
	}
	if opts.Provider != nil {
		if opts.Summarize {
			decorators = append(decorators, WithSummarize(opts.Provider, log))
		}
		if opts.Aspects {
			decorators = append(decorators, WithAspectSentiment(opts.Provider, log))
		}
		if opts.Polls {
			decorators = append(decorators, WithPolls(opts.Provider, log))
		}
	}
	return Compose(NewBase(), decorators...)
}
