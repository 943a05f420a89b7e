package insight

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
)

const summaryPrompt = `You are preparing a briefing for a public agency about citizen feedback on %s.

Below are %d social media posts in this category. Summarize what people are saying. Be concrete about places, services and recurring problems. Do not invent facts that are not in the posts.

Posts:
%s

Respond with ONLY this JSON:
{
    "summary": "2-3 sentence overview",
    "concerns": ["specific concern", "..."],
    "suggestions": ["actionable suggestion for the agency", "..."]
}`

const aspectPrompt = `Below are %d social media posts about %s.

Identify the specific aspects people talk about (for example "train frequency", "rental prices", "clinic waiting time") and the overall sentiment toward each aspect.

Posts:
%s

Respond with ONLY this JSON:
{
    "aspects": [
        {"aspect": "short aspect name", "sentiment": "positive|negative|neutral"}
    ]
}`

const pollPrompt = `Below are %d social media posts about %s.

Propose up to 3 short public survey questions an agency could ask to understand these concerns better. Each question needs 3-5 answer options.

Posts:
%s

Respond with ONLY this JSON:
{
    "polls": [
        {"question": "Survey question?", "options": ["option", "..."]}
    ]
}`

// DefaultMaxPosts bounds how many posts per category go into one prompt.
const DefaultMaxPosts = 30

const maxPostChars = 400

// Summary is one category's digest.
type Summary struct {
	Summary     string   `json:"summary"`
	Concerns    []string `json:"concerns"`
	Suggestions []string `json:"suggestions"`
}

// Aspect is one aspect-sentiment pair.
type Aspect struct {
	Aspect    string `json:"aspect"`
	Sentiment string `json:"sentiment"`
}

// Poll is one generated survey question.
type Poll struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// generative holds what the model-backed decorators share.
type generative struct {
	provider       llm.Provider
	maxPosts       int
	maxTokens      int
	categoryColumn string
	textColumn     string
	log            *zap.Logger
}

func newGenerative(provider llm.Provider, log *zap.Logger) generative {
	return generative{
		provider:       provider,
		maxPosts:       DefaultMaxPosts,
		maxTokens:      1024,
		categoryColumn: dataset.ColDomain,
		textColumn:     dataset.ColText,
		log:            orNop(log),
	}
}

// eachCategory calls fn with the formatted posts of every category. A
// provider error aborts; the prompt and response are the caller's.
func (g generative) eachCategory(ctx context.Context, name string, d *dataset.Dataset,
	fn func(category, posts string, n int) error) error {
	if warnMissing(g.log, name, d, g.categoryColumn, g.textColumn) {
		return nil
	}
	for _, grp := range d.GroupBy(g.categoryColumn) {
		var parts []string
		for _, r := range grp.Rows {
			if len(parts) == g.maxPosts {
				break
			}
			t, ok := d.String(r, g.textColumn)
			if !ok || strings.TrimSpace(t) == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("[%d] %s", len(parts)+1, truncateRunes(t, maxPostChars)))
		}
		if len(parts) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(grp.Key, strings.Join(parts, "\n"), len(parts)); err != nil {
			return fmt.Errorf("insight %s %s: %w", name, grp.Key, err)
		}
	}
	return nil
}

func (g generative) ask(ctx context.Context, prompt string) (map[string]any, error) {
	raw, err := g.provider.Generate(ctx, []llm.Message{llm.User(prompt)}, g.maxTokens)
	if err != nil {
		return nil, err
	}
	return llm.ParseJSONResponse(raw), nil
}

// Summarize asks the model for a summary, concerns and suggestions per
// category and writes KeySummaries. Categories whose answer is unusable or
// empty are left out; duplicate list entries are dropped.
type Summarize struct {
	Inner Source
	generative
}

// WithSummarize returns a Decorator adding Summarize.
func WithSummarize(provider llm.Provider, log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &Summarize{Inner: inner, generative: newGenerative(provider, log)}
	}
}

func (s *Summarize) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := s.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Summary)
	err = s.eachCategory(ctx, "summarize", in.Posts, func(cat, posts string, n int) error {
		parsed, err := s.ask(ctx, fmt.Sprintf(summaryPrompt, cat, n, posts))
		if err != nil {
			return err
		}
		if parsed == nil {
			s.log.Warn("summary response unparsable", zap.String("category", cat))
			return nil
		}
		sum := Summary{
			Summary:     strings.TrimSpace(llm.GetString(parsed, "summary", "")),
			Concerns:    dedupe(llm.GetStrings(parsed, "concerns")),
			Suggestions: dedupe(llm.GetStrings(parsed, "suggestions")),
		}
		if sum.Summary == "" && len(sum.Concerns) == 0 && len(sum.Suggestions) == 0 {
			return nil
		}
		out[cat] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	ins[KeySummaries] = out
	return ins, nil
}

// AspectSentiment extracts aspect-sentiment pairs per category and writes
// KeyAspects. Pairs with an empty aspect or a repeated aspect are dropped.
type AspectSentiment struct {
	Inner Source
	generative
}

// WithAspectSentiment returns a Decorator adding AspectSentiment.
func WithAspectSentiment(provider llm.Provider, log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &AspectSentiment{Inner: inner, generative: newGenerative(provider, log)}
	}
}

func (a *AspectSentiment) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := a.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Aspect)
	err = a.eachCategory(ctx, "aspects", in.Posts, func(cat, posts string, n int) error {
		parsed, err := a.ask(ctx, fmt.Sprintf(aspectPrompt, n, cat, posts))
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		var aspects []Aspect
		for _, obj := range objects(parsed, "aspects") {
			name := strings.TrimSpace(llm.GetString(obj, "aspect", ""))
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			aspects = append(aspects, Aspect{
				Aspect:    name,
				Sentiment: normalizePolarity(llm.GetString(obj, "sentiment", "")),
			})
		}
		if len(aspects) > 0 {
			out[cat] = aspects
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ins[KeyAspects] = out
	return ins, nil
}

// PollGeneration drafts survey questions per category and writes
// KeyPolls. Questions without options or repeated questions are dropped.
type PollGeneration struct {
	Inner Source
	generative
}

// WithPolls returns a Decorator adding PollGeneration.
func WithPolls(provider llm.Provider, log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &PollGeneration{Inner: inner, generative: newGenerative(provider, log)}
	}
}

func (p *PollGeneration) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := p.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Poll)
	err = p.eachCategory(ctx, "polls", in.Posts, func(cat, posts string, n int) error {
		parsed, err := p.ask(ctx, fmt.Sprintf(pollPrompt, n, cat, posts))
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		var polls []Poll
		for _, obj := range objects(parsed, "polls") {
			q := strings.TrimSpace(llm.GetString(obj, "question", ""))
			opts := dedupe(llm.GetStrings(obj, "options"))
			if q == "" || len(opts) == 0 || seen[strings.ToLower(q)] {
				continue
			}
			seen[strings.ToLower(q)] = true
			polls = append(polls, Poll{Question: q, Options: opts})
		}
		if len(polls) > 0 {
			out[cat] = polls
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ins[KeyPolls] = out
	return ins, nil
}

// objects returns the JSON objects in m[key].
func objects(m map[string]any, key string) []map[string]any {
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, v := range arr {
		if obj, ok := v.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// dedupe trims entries and drops empty and case-insensitively repeated
// ones, keeping first occurrences.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func normalizePolarity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return "positive"
	case "negative":
		return "negative"
	}
	return "neutral"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
