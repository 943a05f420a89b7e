package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker starts in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// mockProvider hands the post texts of each request to respond.
type mockProvider struct {
	respond func(ctx context.Context, posts []string) (string, error)

	mu       sync.Mutex
	requests [][]llm.Message
}

func (p *mockProvider) Generate(ctx context.Context, msgs []llm.Message, _ int) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, msgs)
	p.mu.Unlock()
	return p.respond(ctx, postTexts(msgs))
}

func (p *mockProvider) IsConfigured() bool { return true }

func postTexts(msgs []llm.Message) []string {
	var texts []string
	for _, m := range msgs[2:] {
		_, text, _ := strings.Cut(m.Content, "\n")
		text, _, _ = strings.Cut(text, "\n[Previous assessment:")
		texts = append(texts, text)
	}
	return texts
}

func richLine(intent, domain string, conf, sent, imp float64) string {
	return fmt.Sprintf(`"%s","%s","%g","%g","%g"`, intent, domain, conf, sent, imp)
}

func textDataset(n int) *dataset.Dataset {
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = dataset.Record{dataset.ColText: fmt.Sprintf("post-%d", i)}
	}
	return dataset.FromRecords(records)
}

func newTestClient(t *testing.T, p llm.Provider, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(p, cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func annotationsOf(d *dataset.Dataset) []Annotation {
	out := make([]Annotation, d.Len())
	for i := range out {
		out[i].Intent, _ = d.String(i, dataset.ColIntent)
		out[i].Domain, _ = d.String(i, dataset.ColDomain)
		out[i].Confidence, _ = d.Float(i, dataset.ColConfidence)
		out[i].Sentiment, _ = d.Float(i, dataset.ColSentiment)
		out[i].Importance, _ = d.Float(i, dataset.ColImportance)
		out[i].Defaulted, _ = d.Get(i, ColDefaulted).(bool)
	}
	return out
}

func TestShortResponseDefaultsWholeBatch(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		lines := make([]string, len(posts)-2)
		for i := range lines {
			lines[i] = richLine("Yes", "Transport", 0.9, -0.5, 0.8)
		}
		return strings.Join(lines, "\n"), nil
	}}
	c, err := NewClient(p, DefaultConfig(), zap.New(core))
	if err != nil {
		t.Fatal(err)
	}

	out, stats, err := c.Categorize(context.Background(), textDataset(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := make([]Annotation, 20)
	for i := range want {
		want[i] = DefaultAnnotation()
	}
	if diff := cmp.Diff(want, annotationsOf(out)); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
	if stats.MalformedBatches != 1 || stats.DefaultedRows != 20 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if logs.FilterMessage("classification batch malformed, using defaults").Len() != 1 {
		t.Errorf("expected one malformed-batch warning, got %v", logs.All())
	}
}

func TestWellFormedBatchRoundTrips(t *testing.T) {
	domains := []string{"Transport", "Housing", "Healthcare", "Education"}
	want := make([]Annotation, 20)
	lines := make([]string, 20)
	for i := range want {
		intent := IntentNo
		if i%3 == 0 {
			intent = IntentYes
		}
		a := Annotation{
			Intent:     intent,
			Domain:     domains[i%len(domains)],
			Confidence: float64(i%10) / 10,
			Sentiment:  float64(i%5)/5 - 0.5,
			Importance: float64(i%4) / 4,
		}
		want[i] = a
		lines[i] = richLine(a.Intent, a.Domain, a.Confidence, a.Sentiment, a.Importance)
	}
	p := &mockProvider{respond: func(context.Context, []string) (string, error) {
		return strings.Join(lines, "\n"), nil
	}}

	out, stats, err := newTestClient(t, p, nil).Categorize(context.Background(), textDataset(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, annotationsOf(out)); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
	if stats.ParsedRows != 20 || stats.DefaultedRows != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestUnparsableLineDefaultsOnlyThatRow(t *testing.T) {
	p := &mockProvider{respond: func(context.Context, []string) (string, error) {
		return strings.Join([]string{
			richLine("Yes", "Transport", 0.9, -0.8, 0.9),
			`"Yes","Housing"`,
			richLine("No", "Education", 0.7, 0.2, 0.1),
		}, "\n"), nil
	}}

	out, stats, err := newTestClient(t, p, nil).Categorize(context.Background(), textDataset(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Annotation{
		{Intent: IntentYes, Domain: "Transport", Confidence: 0.9, Sentiment: -0.8, Importance: 0.9},
		DefaultAnnotation(),
		{Intent: IntentNo, Domain: "Education", Confidence: 0.7, Sentiment: 0.2, Importance: 0.1},
	}
	if diff := cmp.Diff(want, annotationsOf(out)); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
	if stats.MalformedRows != 1 || stats.MalformedBatches != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestNaNScoreDefaultsRow(t *testing.T) {
	p := &mockProvider{respond: func(context.Context, []string) (string, error) {
		return strings.Join([]string{
			`"Yes","Transport","0.9","NaN","0.5"`,
			richLine("No", "Education", 0.7, 0.2, 0.1),
		}, "\n"), nil
	}}

	out, stats, err := newTestClient(t, p, nil).Categorize(context.Background(), textDataset(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(DefaultAnnotation(), annotationsOf(out)[0]); diff != "" {
		t.Errorf("NaN row should be defaulted (-want +got):\n%s", diff)
	}
	if stats.MalformedRows != 1 || stats.ParsedRows != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if _, err := json.Marshal(out.Records()); err != nil {
		t.Errorf("classified rows must stay JSON encodable: %v", err)
	}
}

// echoResponse answers Yes for posts whose number is even and encodes the
// post number in the importance score, so misplaced rows are detectable.
func echoResponse(posts []string) string {
	lines := make([]string, len(posts))
	for i, post := range posts {
		var n int
		fmt.Sscanf(post, "post-%d", &n)
		intent := IntentNo
		if n%2 == 0 {
			intent = IntentYes
		}
		lines[i] = richLine(intent, "Transport", 1, 0, float64(n)/1000)
	}
	return strings.Join(lines, "\n")
}

func TestBatchesWriteBackInRowOrder(t *testing.T) {
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		var first int
		fmt.Sscanf(posts[0], "post-%d", &first)
		// Later batches finish first.
		time.Sleep(time.Duration(50-first) * time.Millisecond / 5)
		return echoResponse(posts), nil
	}}
	c := newTestClient(t, p, func(cfg *Config) {
		cfg.BatchSize = 5
		cfg.Workers = 4
	})

	out, stats, err := c.Categorize(context.Background(), textDataset(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Batches != 10 {
		t.Errorf("expected 10 batches, got %d", stats.Batches)
	}
	for i := 0; i < out.Len(); i++ {
		imp, _ := out.Float(i, dataset.ColImportance)
		if imp != float64(i)/1000 {
			t.Fatalf("row %d carries annotation of post %v", i, imp*1000)
		}
	}
}

func TestWorkerPoolIsBounded(t *testing.T) {
	var active, peak atomic.Int32
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return echoResponse(posts), nil
	}}
	c := newTestClient(t, p, func(cfg *Config) {
		cfg.BatchSize = 2
		cfg.Workers = 3
	})

	if _, _, err := c.Categorize(context.Background(), textDataset(40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("expected at most 3 concurrent requests, saw %d", got)
	}
}

func TestStalledBatchTimesOutToDefaults(t *testing.T) {
	p := &mockProvider{respond: func(ctx context.Context, posts []string) (string, error) {
		if posts[0] == "post-5" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return echoResponse(posts), nil
	}}
	c := newTestClient(t, p, func(cfg *Config) {
		cfg.BatchSize = 5
		cfg.BatchTimeout = 50 * time.Millisecond
	})

	out, stats, err := c.Categorize(context.Background(), textDataset(15))
	if err != nil {
		t.Fatalf("timeout should not be fatal: %v", err)
	}
	if stats.TimedOutBatches != 1 || stats.DefaultedRows != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}
	got := annotationsOf(out)
	for i, a := range got {
		defaulted := i >= 5 && i < 10
		if a.Defaulted != defaulted {
			t.Errorf("row %d: defaulted=%v, want %v", i, a.Defaulted, defaulted)
		}
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	refused := errors.New("connection refused")
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		if posts[0] == "post-4" {
			return "", refused
		}
		return echoResponse(posts), nil
	}}
	c := newTestClient(t, p, func(cfg *Config) { cfg.BatchSize = 4 })

	out, _, err := c.Categorize(context.Background(), textDataset(12))
	if out != nil {
		t.Error("expected no dataset on transport failure")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Batch != 1 || te.Start != 4 || te.End != 8 {
		t.Errorf("unexpected batch range %+v", te)
	}
	if !errors.Is(err, refused) {
		t.Error("expected underlying error to be preserved")
	}
}

func TestCancelledContextIsNotDefaulted(t *testing.T) {
	p := &mockProvider{respond: func(ctx context.Context, _ []string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestClient(t, p, nil).Categorize(ctx, textDataset(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMissingTextColumn(t *testing.T) {
	p := &mockProvider{respond: func(context.Context, []string) (string, error) { return "", nil }}
	d := dataset.FromRecords([]dataset.Record{{dataset.ColTitle: "x"}})
	if _, _, err := newTestClient(t, p, nil).Categorize(context.Background(), d); err == nil {
		t.Error("expected error for missing text column")
	}
}

func TestRequestEmbedsCountAndVocabulary(t *testing.T) {
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		return echoResponse(posts), nil
	}}
	c := newTestClient(t, p, func(cfg *Config) {
		cfg.Categories = []string{"Transport", "Housing", "Others"}
	})
	if _, _, err := c.Categorize(context.Background(), textDataset(3)); err != nil {
		t.Fatal(err)
	}

	msgs := p.requests[0]
	if len(msgs) != 5 {
		t.Fatalf("expected system + instruction + 3 posts, got %d messages", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("first message should be the system instruction, got %s", msgs[0].Role)
	}
	for _, want := range []string{"following 3 posts", "exactly 3 lines", "Transport, Housing, Others"} {
		if !strings.Contains(msgs[1].Content, want) {
			t.Errorf("instruction missing %q:\n%s", want, msgs[1].Content)
		}
	}
	if diff := cmp.Diff([]string{"post-0", "post-1", "post-2"}, postTexts(msgs)); diff != "" {
		t.Errorf("post order mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyKeepsRowsPositiveInBothRounds(t *testing.T) {
	first := dataset.FromRecords([]dataset.Record{
		{dataset.ColText: "post-0", dataset.ColIntent: IntentYes, dataset.ColDomain: "Housing", dataset.ColConfidence: 0.6},
		{dataset.ColText: "post-1", dataset.ColIntent: IntentNo, dataset.ColDomain: "Others", dataset.ColConfidence: 0.9},
		{dataset.ColText: "post-2", dataset.ColIntent: IntentYes, dataset.ColDomain: "Housing", dataset.ColConfidence: 0.8},
		{dataset.ColText: "post-3", dataset.ColIntent: IntentYes, dataset.ColDomain: "Housing", dataset.ColConfidence: 0.7},
		{dataset.ColText: "post-4", dataset.ColIntent: IntentYes, dataset.ColDomain: "Others", dataset.ColConfidence: 0.5},
	})
	// Second round: even posts stay Yes and move to Transport.
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		return echoResponse(posts), nil
	}}
	c := newTestClient(t, p, nil)

	out, stats, err := c.Verify(context.Background(), first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	texts := make([]string, out.Len())
	for i := range texts {
		texts[i], _ = out.String(i, dataset.ColText)
	}
	if diff := cmp.Diff([]string{"post-0", "post-2", "post-4"}, texts); diff != "" {
		t.Errorf("confirmed rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2, 4}, out.Index()); diff != "" {
		t.Errorf("index labels should trace back to the input (-want +got):\n%s", diff)
	}
	if d, _ := out.String(0, dataset.ColDomain); d != "Transport" {
		t.Errorf("expected second-round domain, got %q", d)
	}
	if d, _ := out.String(0, ColInitialDomain); d != "Housing" {
		t.Errorf("expected first-round domain to be kept, got %q", d)
	}
	if stats.Items != 4 {
		t.Errorf("expected only the 4 positive rows to be re-checked, got %d", stats.Items)
	}

	req := p.requests[0][2].Content
	if !strings.Contains(req, "[Previous assessment: domain=Housing, confidence=0.60]") {
		t.Errorf("expected prior assessment in request, got %q", req)
	}
	if !strings.Contains(p.requests[0][1].Content, "previously flagged") {
		t.Error("expected verification instruction")
	}
}

func TestVerifyUsesSmallerBatches(t *testing.T) {
	records := make([]dataset.Record, 25)
	for i := range records {
		records[i] = dataset.Record{dataset.ColText: fmt.Sprintf("post-%d", i), dataset.ColIntent: IntentYes}
	}
	p := &mockProvider{respond: func(_ context.Context, posts []string) (string, error) {
		return echoResponse(posts), nil
	}}
	_, stats, err := newTestClient(t, p, nil).Verify(context.Background(), dataset.FromRecords(records))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Batches != 3 {
		t.Errorf("expected 3 verification batches of at most 10, got %d", stats.Batches)
	}
}

func TestVerifyNoPositives(t *testing.T) {
	d := dataset.FromRecords([]dataset.Record{
		{dataset.ColText: "post-0", dataset.ColIntent: IntentNo},
	})
	p := &mockProvider{respond: func(context.Context, []string) (string, error) {
		t.Error("provider should not be called")
		return "", nil
	}}
	out, _, err := newTestClient(t, p, nil).Verify(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected empty result, got %d rows", out.Len())
	}
}

func TestNewClientRequiresProvider(t *testing.T) {
	if _, err := NewClient(nil, DefaultConfig(), nil); err == nil {
		t.Error("expected error without provider")
	}
}

func TestBatches(t *testing.T) {
	if got := Batches(41, 20); got != 3 {
		t.Errorf("Batches(41, 20) = %d, want 3", got)
	}
	if got := Batches(0, 20); got != 0 {
		t.Errorf("Batches(0, 20) = %d, want 0", got)
	}
}
