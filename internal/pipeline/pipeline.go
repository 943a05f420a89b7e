// Package pipeline runs one analysis over a set of posts: preprocessing,
// validation, batch classification with a verification round, sentiment
// scoring, the insight chain and the history append.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/classify"
	"github.com/TobiSchelling/ComplaintRadar/internal/cluster"
	"github.com/TobiSchelling/ComplaintRadar/internal/config"
	"github.com/TobiSchelling/ComplaintRadar/internal/database"
	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/insight"
	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
	"github.com/TobiSchelling/ComplaintRadar/internal/preprocess"
	"github.com/TobiSchelling/ComplaintRadar/internal/sentiment"
	"github.com/TobiSchelling/ComplaintRadar/internal/validate"
)

// historyWindow bounds how far back forecasting and anomaly detection look.
const historyWindow = 90

// HistoryStore reads and appends sentiment history.
type HistoryStore interface {
	GetHistory(since string) ([]database.HistoryRow, error)
	AppendHistory(taskID string, rows []database.HistoryRow) error
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Result holds the results of a full analysis run.
type Result struct {
	Steps          []StepResult     `json:"steps"`
	Input          int              `json:"input_posts"`
	Preprocessed   int              `json:"preprocessed_posts"`
	Complaints     int              `json:"complaints"`
	Classification classify.Stats   `json:"classification"`
	Verification   *classify.Stats  `json:"verification,omitempty"`
	Insights       map[string]any   `json:"insights,omitempty"`
	Categorized    []dataset.Record `json:"categorized"`
	Analytics      []dataset.Record `json:"analytics"`
	Insight        insight.Insight  `json:"-"`
	Dataset        *dataset.Dataset `json:"-"`
}

func (r *Result) step(name, format string, args ...any) {
	r.Steps = append(r.Steps, StepResult{Name: name, Summary: fmt.Sprintf(format, args...)})
}

// Analyzer owns the configured stages of one analysis.
type Analyzer struct {
	preprocess *preprocess.Pipeline
	validation *validate.Chain
	classifier *classify.Client
	sentiment  sentiment.Classifier
	insights   insight.Source
	history    HistoryStore
	verify     bool
	textColumn string
	now        func() time.Time
	log        *zap.Logger
}

// New assembles an analyzer from configuration. history may be nil, in
// which case forecasting works from the posts' own timestamps and nothing
// is appended. Misconfiguration is reported here, before any external call.
func New(cfg *config.Config, provider llm.Provider, history HistoryStore, log *zap.Logger) (*Analyzer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	profile, err := preprocess.ParseProfile(cfg.Preprocess.Profile)
	if err != nil {
		return nil, err
	}
	popts := preprocess.Options{
		DedupeColumns:    cfg.Preprocess.DedupeColumns,
		CriticalColumns:  cfg.Preprocess.CriticalColumns,
		JoinColumns:      cfg.Preprocess.JoinColumns,
		TextColumn:       cfg.Preprocess.TextColumn,
		NormalizeColumns: cfg.Preprocess.NormalizeColumns,
		ExtraStopwords:   cfg.Preprocess.ExtraStopwords,
		Stem:             cfg.Preprocess.Stem,
	}
	if popts.TextColumn == "" {
		popts.TextColumn = dataset.ColText
	}
	prep, err := preprocess.NewDirector(popts, log).Construct(profile)
	if err != nil {
		return nil, err
	}

	chain, err := validationChain(cfg.Validation, popts.TextColumn, log)
	if err != nil {
		return nil, err
	}

	schema, err := classify.ParseSchema(cfg.Classification.Schema)
	if err != nil {
		return nil, err
	}
	client, err := classify.NewClient(provider, classify.Config{
		BatchSize:       cfg.Classification.BatchSize,
		VerifyBatchSize: cfg.Classification.VerifyBatchSize,
		Workers:         cfg.Classification.Workers,
		BatchTimeout:    cfg.Classification.BatchTimeout,
		MaxTokens:       cfg.LLM.MaxTokens,
		Schema:          schema,
		Categories:      cfg.Classification.Categories,
		TextColumn:      popts.TextColumn,
	}, log)
	if err != nil {
		return nil, err
	}

	method := cluster.Method(cfg.Insights.ClusterMethod)
	if method != cluster.MethodKMeans && method != cluster.MethodWard && method != "" {
		return nil, fmt.Errorf("unknown cluster method %q", method)
	}
	iopts := insight.Options{
		Importance:      cfg.Insights.Importance,
		ForecastPeriods: cfg.Insights.ForecastPeriods,
		AnomalyZ:        cfg.Insights.AnomalyZ,
		Clusters:        cfg.Insights.Clusters,
		ClusterMethod:   method,
		Discrepancy: insight.Thresholds{
			Low:  cfg.Insights.Discrepancy.Low,
			Med:  cfg.Insights.Discrepancy.Med,
			High: cfg.Insights.Discrepancy.High,
		},
		Summarize: cfg.Insights.Summarize,
		Aspects:   cfg.Insights.Aspects,
		Polls:     cfg.Insights.Polls,
	}
	if iopts.Summarize || iopts.Aspects || iopts.Polls {
		iopts.Provider = provider
	}

	return &Analyzer{
		preprocess: prep,
		validation: chain,
		classifier: client,
		sentiment:  sentiment.NewLexicon(log),
		insights:   insight.Build(iopts, log),
		history:    history,
		verify:     cfg.Classification.Verify,
		textColumn: popts.TextColumn,
		now:        time.Now,
		log:        log,
	}, nil
}

func validationChain(cfg config.Validation, text string, log *zap.Logger) (*validate.Chain, error) {
	validators := []validate.Validator{
		validate.NewNotEmpty(log, text),
		validate.NewOnlyString(log, false, text),
		validate.NewLength(log, validate.LengthBound{Column: text, Min: cfg.MinTextLength, Max: cfg.MaxTextLength}),
		validate.NewNumericRange(log,
			validate.Range{Column: dataset.ColVotes, Min: -1e9, Max: 1e9, Inclusive: true},
			validate.Range{Column: dataset.ColComments, Min: 0, Max: 1e9, Inclusive: true},
		),
	}
	if cfg.URLPattern != "" {
		re, err := regexp.Compile(cfg.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("validation.url_pattern: %w", err)
		}
		validators = append(validators, validate.NewRegex(log, true, validate.Pattern{Column: dataset.ColURL, Expr: re}))
	}
	return validate.NewChain(validators...), nil
}

// Analyze runs every step over posts. A validation failure is returned as
// *validate.FailedError and a failed text service call as
// *classify.TransportError. runID tags the appended history rows.
func (a *Analyzer) Analyze(ctx context.Context, posts *dataset.Dataset, runID string) (*Result, error) {
	r := &Result{Input: posts.Len()}

	clean, err := a.preprocess.Run(posts)
	if err != nil {
		return r, err
	}
	r.Preprocessed = clean.Len()
	r.step("Preprocess", "%d of %d posts kept after %v", clean.Len(), posts.Len(), a.preprocess.Stages())

	if vr := a.validation.Validate(clean); !vr.Success {
		r.step("Validate", "failed: %d errors", len(vr.Errors))
		return r, vr.Err()
	}
	r.step("Validate", "passed %v", a.validation.Names())

	if clean.Len() == 0 {
		r.step("Categorize", "no posts to classify")
		return r, nil
	}

	categorized, stats, err := a.classifier.Categorize(ctx, clean)
	r.Classification = stats
	if err != nil {
		return r, err
	}
	r.Categorized = categorized.Records()
	complaints := categorized.Filter(func(i int) bool {
		s, _ := categorized.String(i, dataset.ColIntent)
		return s == classify.IntentYes
	})
	r.step("Categorize", "%d posts in %d batches: %d complaints, %d defaulted rows",
		stats.Items, stats.Batches, complaints.Len(), stats.DefaultedRows)

	if a.verify && complaints.Len() > 0 {
		verified, vstats, err := a.classifier.Verify(ctx, categorized)
		r.Verification = &vstats
		if err != nil {
			return r, err
		}
		r.step("Verify", "%d of %d complaints confirmed in %d batches", verified.Len(), complaints.Len(), vstats.Batches)
		complaints = verified
	}
	r.Complaints = complaints.Len()
	if complaints.Len() == 0 {
		r.step("Insights", "no complaints to analyse")
		r.Dataset = complaints
		return r, nil
	}

	scored, err := a.sentiment.Classify(ctx, complaints, []string{a.textColumn})
	if err != nil {
		return r, err
	}
	if !scored.Has(dataset.ColSentiment) {
		_ = scored.SetColumn(dataset.ColSentiment, scored.Column(sentiment.ColLexiconSentiment))
	}
	r.step("Sentiment", "scored %d complaints with %s", scored.Len(), a.sentiment.Name())

	history, err := a.loadHistory()
	if err != nil {
		return r, err
	}
	ins, err := a.insights.ExtractInsights(ctx, &insight.Input{Posts: scored, History: history})
	if err != nil {
		return r, fmt.Errorf("insights: %w", err)
	}
	enriched := insight.Enrich(scored, ins)
	r.Insight = ins
	r.Insights = ins.Aggregates()
	r.Dataset = enriched
	r.Analytics = enriched.Records()
	r.step("Insights", "%d keys over %d complaints", len(ins), enriched.Len())

	if a.history != nil {
		rows := historyRows(enriched, a.now().Format(time.DateOnly))
		if err := a.history.AppendHistory(runID, rows); err != nil {
			return r, fmt.Errorf("appending history: %w", err)
		}
		r.step("History", "appended %d observations", len(rows))
	}

	a.log.Info("analysis complete",
		zap.Int("input", r.Input),
		zap.Int("preprocessed", r.Preprocessed),
		zap.Int("complaints", r.Complaints))
	return r, nil
}

func (a *Analyzer) loadHistory() (*dataset.Dataset, error) {
	if a.history == nil {
		return nil, nil
	}
	since := a.now().AddDate(0, 0, -historyWindow).Format(time.DateOnly)
	rows, err := a.history.GetHistory(since)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return historyDataset(rows), nil
}

// DryRun preprocesses and validates posts and reports what a real run
// would dispatch, without calling any external service.
func (a *Analyzer) DryRun(posts *dataset.Dataset) (*Result, error) {
	r := &Result{Input: posts.Len()}

	clean, err := a.preprocess.Run(posts)
	if err != nil {
		return r, err
	}
	r.Preprocessed = clean.Len()
	r.step("Preprocess", "[dry-run] %d of %d posts kept after %v", clean.Len(), posts.Len(), a.preprocess.Stages())

	if vr := a.validation.Validate(clean); !vr.Success {
		r.step("Validate", "[dry-run] failed: %d errors", len(vr.Errors))
		return r, vr.Err()
	}
	r.step("Validate", "[dry-run] passed %v", a.validation.Names())

	cfg := a.classifier.Config()
	r.step("Categorize", "[dry-run] would send %d batches of up to %d posts with %d workers",
		classify.Batches(clean.Len(), cfg.BatchSize), cfg.BatchSize, cfg.Workers)
	if a.verify {
		r.step("Verify", "[dry-run] would send at most %d batches of up to %d posts",
			classify.Batches(clean.Len(), cfg.VerifyBatchSize), cfg.VerifyBatchSize)
	}
	return r, nil
}
