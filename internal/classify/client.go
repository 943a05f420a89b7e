// Package classify annotates a text column with intent, domain and scores
// using a generative text model.
//
// Texts are split into contiguous batches that are sent concurrently
// through a bounded worker pool. Each batch writes its annotations into
// its own slice range, so the output order never depends on completion
// order. An unusable response (wrong line count, unparsable line, or a
// batch timeout) is replaced with default annotations; a failed call is
// returned as a TransportError.
package classify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
)

// Columns written besides the dataset package's annotation columns.
const (
	ColDefaulted     = "annotation_defaulted"
	ColInitialDomain = "initial_domain"
)

// DefaultCategories is the domain vocabulary used when none is configured.
var DefaultCategories = []string{
	"Transport", "Housing", "Healthcare", "Education", "Employment",
	"Environment", "Public Safety", "Cost of Living", "Government Services", DomainOthers,
}

// Config controls batching and dispatch.
type Config struct {
	BatchSize       int
	VerifyBatchSize int
	Workers         int
	BatchTimeout    time.Duration
	MaxTokens       int
	Schema          Schema
	Categories      []string
	TextColumn      string
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:       20,
		VerifyBatchSize: 10,
		Workers:         4,
		BatchTimeout:    90 * time.Second,
		MaxTokens:       2048,
		Schema:          SchemaRich,
		Categories:      DefaultCategories,
		TextColumn:      dataset.ColText,
	}
}

// Stats counts what happened during one Categorize or Verify call.
type Stats struct {
	Items            int `json:"items"`
	Batches          int `json:"batches"`
	ParsedRows       int `json:"parsed_rows"`
	DefaultedRows    int `json:"defaulted_rows"`
	MalformedBatches int `json:"malformed_batches"`
	MalformedRows    int `json:"malformed_rows"`
	TimedOutBatches  int `json:"timed_out_batches"`
}

type counters struct {
	batches, parsed, defaulted, malformedBatches, malformedRows, timedOut atomic.Int64
}

func (c *counters) snapshot(items int) Stats {
	return Stats{
		Items:            items,
		Batches:          int(c.batches.Load()),
		ParsedRows:       int(c.parsed.Load()),
		DefaultedRows:    int(c.defaulted.Load()),
		MalformedBatches: int(c.malformedBatches.Load()),
		MalformedRows:    int(c.malformedRows.Load()),
		TimedOutBatches:  int(c.timedOut.Load()),
	}
}

// TransportError reports a failed call to the text service. It aborts the
// whole classification run.
type TransportError struct {
	Batch int
	Start int
	End   int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("classification batch %d (rows %d-%d): %v", e.Batch, e.Start, e.End-1, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client classifies datasets through an injected provider.
type Client struct {
	provider llm.Provider
	parser   *Parser
	cfg      Config
	log      *zap.Logger
}

// NewClient validates cfg and creates a client. Zero-valued sizes fall
// back to DefaultConfig.
func NewClient(provider llm.Provider, cfg Config, log *zap.Logger) (*Client, error) {
	if provider == nil {
		return nil, errors.New("classify: no LLM provider")
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.VerifyBatchSize <= 0 {
		cfg.VerifyBatchSize = def.VerifyBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = def.Categories
	}
	if cfg.TextColumn == "" {
		cfg.TextColumn = def.TextColumn
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		provider: provider,
		parser:   NewParser(cfg.Schema, cfg.Categories),
		cfg:      cfg,
		log:      log,
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Batches returns how many requests a dataset of n rows needs at the given
// batch size.
func Batches(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Categorize annotates every row of d. The returned dataset is a copy with
// intent and domain columns (plus scores for the rich schema) and
// ColDefaulted.
func (c *Client) Categorize(ctx context.Context, d *dataset.Dataset) (*dataset.Dataset, Stats, error) {
	if !d.Has(c.cfg.TextColumn) {
		return nil, Stats{}, fmt.Errorf("classify: text column %q missing", c.cfg.TextColumn)
	}
	items := make([]item, d.Len())
	for i := range items {
		items[i].text, _ = d.String(i, c.cfg.TextColumn)
	}

	anns, stats, err := c.annotate(ctx, items, c.cfg.BatchSize, roundCategorize)
	if err != nil {
		return nil, stats, err
	}
	out := d.Clone()
	c.writeBack(out, anns)
	c.log.Info("categorization complete",
		zap.Int("rows", stats.Items),
		zap.Int("batches", stats.Batches),
		zap.Int("defaulted_rows", stats.DefaultedRows))
	return out, stats, nil
}

// Verify re-classifies the rows of an already categorized dataset whose
// intent is Yes, using smaller batches and the first round's assessment as
// context. Only rows judged Yes in both rounds are returned; their domain
// and scores come from the second round and the first-round domain is kept
// in ColInitialDomain.
func (c *Client) Verify(ctx context.Context, d *dataset.Dataset) (*dataset.Dataset, Stats, error) {
	if missing := d.Missing(c.cfg.TextColumn, dataset.ColIntent); len(missing) > 0 {
		return nil, Stats{}, fmt.Errorf("classify: verify needs columns %v", missing)
	}
	positives := d.Filter(func(i int) bool {
		s, _ := d.String(i, dataset.ColIntent)
		return s == IntentYes
	})

	items := make([]item, positives.Len())
	for i := range items {
		items[i].text, _ = positives.String(i, c.cfg.TextColumn)
		items[i].context = priorAssessment(positives, i)
	}

	anns, stats, err := c.annotate(ctx, items, c.cfg.VerifyBatchSize, roundVerify)
	if err != nil {
		return nil, stats, err
	}

	out := positives.Clone()
	if out.Has(dataset.ColDomain) {
		_ = out.SetColumn(ColInitialDomain, out.Column(dataset.ColDomain))
	}
	c.writeBack(out, anns)
	confirmed := out.Filter(func(i int) bool {
		s, _ := out.String(i, dataset.ColIntent)
		return s == IntentYes
	})

	c.log.Info("verification complete",
		zap.Int("candidates", positives.Len()),
		zap.Int("confirmed", confirmed.Len()),
		zap.Int("batches", stats.Batches),
		zap.Int("defaulted_rows", stats.DefaultedRows))
	return confirmed, stats, nil
}

func priorAssessment(d *dataset.Dataset, i int) string {
	domain, _ := d.String(i, dataset.ColDomain)
	if domain == "" {
		domain = DomainOthers
	}
	s := "domain=" + domain
	if conf, ok := d.Float(i, dataset.ColConfidence); ok {
		s += fmt.Sprintf(", confidence=%.2f", conf)
	}
	if sent, ok := d.Float(i, dataset.ColSentiment); ok {
		s += fmt.Sprintf(", sentiment=%.2f", sent)
	}
	return s
}

func (c *Client) writeBack(d *dataset.Dataset, anns []Annotation) {
	n := len(anns)
	intent := make([]any, n)
	domain := make([]any, n)
	defaulted := make([]any, n)
	conf := make([]any, n)
	sent := make([]any, n)
	imp := make([]any, n)
	for i, a := range anns {
		intent[i] = a.Intent
		domain[i] = a.Domain
		defaulted[i] = a.Defaulted
		conf[i] = a.Confidence
		sent[i] = a.Sentiment
		imp[i] = a.Importance
	}
	// Lengths match d.Len() by construction.
	_ = d.SetColumn(dataset.ColIntent, intent)
	_ = d.SetColumn(dataset.ColDomain, domain)
	if c.cfg.Schema == SchemaRich {
		_ = d.SetColumn(dataset.ColConfidence, conf)
		_ = d.SetColumn(dataset.ColSentiment, sent)
		_ = d.SetColumn(dataset.ColImportance, imp)
	}
	_ = d.SetColumn(ColDefaulted, defaulted)
}

// span is a half-open [start, end) range of item positions.
type span struct {
	n, start, end int
}

func partition(total, size int) []span {
	spans := make([]span, 0, Batches(total, size))
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		spans = append(spans, span{n: len(spans), start: start, end: end})
	}
	return spans
}

// annotate runs every batch through the worker pool and returns one
// annotation per item, in item order.
func (c *Client) annotate(ctx context.Context, items []item, size int, r round) ([]Annotation, Stats, error) {
	results := make([]Annotation, len(items))
	var cnt counters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, s := range partition(len(items), size) {
		g.Go(func() error {
			anns, err := c.runBatch(gctx, s, items[s.start:s.end], r, &cnt)
			if err != nil {
				return err
			}
			copy(results[s.start:s.end], fit(anns, s.end-s.start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cnt.snapshot(len(items)), err
	}
	return results, cnt.snapshot(len(items)), nil
}

func (c *Client) runBatch(ctx context.Context, s span, items []item, r round, cnt *counters) ([]Annotation, error) {
	cnt.batches.Add(1)
	n := len(items)

	bctx := ctx
	if c.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, c.cfg.BatchTimeout)
		defer cancel()
	}

	msgs := buildMessages(items, c.cfg.Categories, c.cfg.Schema, r)
	raw, err := c.provider.Generate(bctx, msgs, c.cfg.MaxTokens)
	if err != nil {
		if ctx.Err() == nil && errors.Is(bctx.Err(), context.DeadlineExceeded) {
			cnt.timedOut.Add(1)
			cnt.defaulted.Add(int64(n))
			c.log.Warn("classification batch timed out, using defaults",
				zap.Int("batch", s.n),
				zap.Int("start", s.start),
				zap.Int("end", s.end),
				zap.String("reason", "timeout"),
				zap.Duration("timeout", c.cfg.BatchTimeout))
			return defaults(n), nil
		}
		return nil, &TransportError{Batch: s.n, Start: s.start, End: s.end, Err: err}
	}

	res := c.parser.ParseBatch(raw, n)
	if res.LineCountMismatch {
		cnt.malformedBatches.Add(1)
		cnt.defaulted.Add(int64(n))
		c.log.Warn("classification batch malformed, using defaults",
			zap.Int("batch", s.n),
			zap.Int("start", s.start),
			zap.Int("end", s.end),
			zap.String("reason", "line count mismatch"),
			zap.Int("expected_lines", n),
			zap.Int("got_lines", res.Lines))
		return res.Annotations, nil
	}

	for _, i := range res.MalformedRows {
		c.log.Debug("classification row unparsable, using default",
			zap.Int("batch", s.n),
			zap.Int("row", s.start+i))
	}
	cnt.malformedRows.Add(int64(len(res.MalformedRows)))
	cnt.defaulted.Add(int64(len(res.MalformedRows)))
	cnt.parsed.Add(int64(n - len(res.MalformedRows)))
	return res.Annotations, nil
}
