package classify

import (
	"encoding/csv"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
)

// Intent labels.
const (
	IntentYes     = "Yes"
	IntentNo      = "No"
	IntentUnknown = "Unknown"
)

// DomainOthers is the catch-all domain for out-of-vocabulary labels.
const DomainOthers = "Others"

// Schema selects the fields each response line carries.
type Schema int

const (
	// SchemaBasic lines carry intent and domain.
	SchemaBasic Schema = iota
	// SchemaRich lines add confidence, sentiment and importance.
	SchemaRich
)

// ParseSchema maps a config value to a Schema.
func ParseSchema(s string) (Schema, error) {
	switch strings.ToLower(s) {
	case "basic":
		return SchemaBasic, nil
	case "rich", "":
		return SchemaRich, nil
	}
	return SchemaBasic, fmt.Errorf("unknown classification schema %q", s)
}

// Fields returns the number of comma-separated fields per line.
func (s Schema) Fields() int {
	if s == SchemaRich {
		return 5
	}
	return 2
}

func (s Schema) String() string {
	if s == SchemaRich {
		return "rich"
	}
	return "basic"
}

// Annotation is the parsed classification of one text item.
type Annotation struct {
	Intent     string
	Domain     string
	Confidence float64
	Sentiment  float64
	Importance float64
	Defaulted  bool
}

// DefaultAnnotation is substituted for rows the model did not answer
// usably.
func DefaultAnnotation() Annotation {
	return Annotation{Intent: IntentUnknown, Domain: DomainOthers, Defaulted: true}
}

func defaults(n int) []Annotation {
	out := make([]Annotation, n)
	for i := range out {
		out[i] = DefaultAnnotation()
	}
	return out
}

// BatchParse is the outcome of parsing one batch response.
type BatchParse struct {
	Annotations []Annotation
	// LineCountMismatch is set when the response did not have exactly one
	// line per input, in which case every annotation is the default.
	LineCountMismatch bool
	Lines             int
	// MalformedRows lists positions within the batch whose line could not
	// be parsed.
	MalformedRows []int
}

// Parser turns raw model output into annotations.
type Parser struct {
	Schema     Schema
	categories map[string]string
}

// NewParser creates a parser for the given closed domain vocabulary.
func NewParser(schema Schema, categories []string) *Parser {
	cats := make(map[string]string, len(categories))
	for _, c := range categories {
		cats[strings.ToLower(strings.TrimSpace(c))] = c
	}
	return &Parser{Schema: schema, categories: cats}
}

// ParseBatch parses a response expected to hold exactly n lines. A line
// count other than n discards the whole batch; a single unparsable line
// only defaults that row.
func (p *Parser) ParseBatch(raw string, n int) BatchParse {
	lines := ResponseLines(raw)
	res := BatchParse{Lines: len(lines)}
	if len(lines) != n {
		res.LineCountMismatch = true
		res.Annotations = defaults(n)
		return res
	}

	res.Annotations = make([]Annotation, n)
	for i, line := range lines {
		a, err := p.ParseLine(line)
		if err != nil {
			res.Annotations[i] = DefaultAnnotation()
			res.MalformedRows = append(res.MalformedRows, i)
			continue
		}
		res.Annotations[i] = a
	}
	return res
}

// ResponseLines splits a response into non-blank lines, dropping any
// surrounding code fence.
func ResponseLines(raw string) []string {
	var lines []string
	for _, l := range strings.Split(llm.StripCodeFence(raw), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

var enumPrefix = regexp.MustCompile(`^\s*(?:\d+\s*[.):]|[-*•])\s*`)

// ParseLine parses one response line.
func (p *Parser) ParseLine(line string) (Annotation, error) {
	fields := splitFields(enumPrefix.ReplaceAllString(line, ""))
	if len(fields) != p.Schema.Fields() {
		return Annotation{}, fmt.Errorf("expected %d fields, got %d", p.Schema.Fields(), len(fields))
	}

	var a Annotation
	switch strings.ToLower(fields[0]) {
	case "yes":
		a.Intent = IntentYes
	case "no":
		a.Intent = IntentNo
	default:
		return Annotation{}, fmt.Errorf("unrecognized intent %q", fields[0])
	}
	a.Domain = p.domain(fields[1])

	if p.Schema == SchemaBasic {
		return a, nil
	}

	var err error
	if a.Confidence, err = parseScore(fields[2], 0, 1); err != nil {
		return Annotation{}, fmt.Errorf("confidence: %w", err)
	}
	if a.Sentiment, err = parseScore(fields[3], -1, 1); err != nil {
		return Annotation{}, fmt.Errorf("sentiment: %w", err)
	}
	if a.Importance, err = parseScore(fields[4], 0, 1); err != nil {
		return Annotation{}, fmt.Errorf("importance: %w", err)
	}
	return a, nil
}

func (p *Parser) domain(label string) string {
	if c, ok := p.categories[strings.ToLower(label)]; ok {
		return c
	}
	return DomainOthers
}

// splitFields splits a comma-separated line, honouring double quotes when
// they are balanced and falling back to a plain split otherwise.
func splitFields(line string) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	fields, err := r.Read()
	if err != nil {
		fields = strings.Split(line, ",")
	}
	for i, f := range fields {
		fields[i] = strings.Trim(f, " \t\"'`")
	}
	return fields
}

func parseScore(s string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("score %q is not a number", s)
	}
	if v < lo {
		return lo, nil
	}
	if v > hi {
		return hi, nil
	}
	return v, nil
}

// fit truncates or pads anns to exactly n entries.
func fit(anns []Annotation, n int) []Annotation {
	if len(anns) >= n {
		return anns[:n]
	}
	out := make([]Annotation, n)
	copy(out, anns)
	for i := len(anns); i < n; i++ {
		out[i] = DefaultAnnotation()
	}
	return out
}
