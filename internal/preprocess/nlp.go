package preprocess

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// ColTokens holds the space-separated token stream produced by the
// advanced profile. The source text column is left untouched so the
// classifier still sees natural language.
const ColTokens = "tokens"

// Tokenize splits Source into lowercase word tokens and writes them to
// Target. Bracketed sentinel tokens such as [smile] are kept whole.
type Tokenize struct {
	Source string
	Target string
	log    *zap.Logger
}

// NewTokenize creates a tokenization stage.
func NewTokenize(log *zap.Logger, source, target string) *Tokenize {
	return &Tokenize{Source: source, Target: target, log: orNop(log)}
}

func (s *Tokenize) Name() string { return "tokenize" }

func (s *Tokenize) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	if skipIfMissing(s.log, s.Name(), d, []string{s.Source}) {
		return d, nil
	}
	out := d.Clone()
	for i := 0; i < out.Len(); i++ {
		text, ok := out.String(i, s.Source)
		if !ok {
			out.Set(i, s.Target, "")
			continue
		}
		out.Set(i, s.Target, strings.Join(tokenize(text), " "))
	}
	return out, nil
}

func tokenize(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			tokens = append(tokens, strings.ToLower(field))
			continue
		}
		var cur strings.Builder
		flush := func() {
			if w := strings.Trim(cur.String(), "-'"); w != "" {
				tokens = append(tokens, w)
			}
			cur.Reset()
		}
		for _, r := range field {
			if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '\'' {
				cur.WriteRune(unicode.ToLower(r))
			} else {
				flush()
			}
		}
		flush()
	}
	return tokens
}

// RemoveStopwords drops common function words from a token column.
type RemoveStopwords struct {
	Column    string
	stopwords map[string]bool
	log       *zap.Logger
}

// NewRemoveStopwords creates a stopword filter. extra words are added to
// the built-in English list.
func NewRemoveStopwords(log *zap.Logger, column string, extra ...string) *RemoveStopwords {
	stops := make(map[string]bool, len(defaultStopwords)+len(extra))
	for w := range defaultStopwords {
		stops[w] = true
	}
	for _, w := range extra {
		stops[strings.ToLower(w)] = true
	}
	return &RemoveStopwords{Column: column, stopwords: stops, log: orNop(log)}
}

func (s *RemoveStopwords) Name() string { return "remove_stopwords" }

func (s *RemoveStopwords) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	if skipIfMissing(s.log, s.Name(), d, []string{s.Column}) {
		return d, nil
	}
	return mapStrings(d, []string{s.Column}, func(v string) string {
		var kept []string
		for _, w := range strings.Fields(v) {
			if !s.stopwords[w] {
				kept = append(kept, w)
			}
		}
		return strings.Join(kept, " ")
	}), nil
}

// Lemmatize maps inflected forms to a dictionary form using an irregular
// word table and conservative suffix rules.
type Lemmatize struct {
	Column string
	log    *zap.Logger
}

// NewLemmatize creates a lemmatization stage.
func NewLemmatize(log *zap.Logger, column string) *Lemmatize {
	return &Lemmatize{Column: column, log: orNop(log)}
}

func (s *Lemmatize) Name() string { return "lemmatize" }

func (s *Lemmatize) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	if skipIfMissing(s.log, s.Name(), d, []string{s.Column}) {
		return d, nil
	}
	return mapStrings(d, []string{s.Column}, func(v string) string {
		words := strings.Fields(v)
		for i, w := range words {
			words[i] = lemma(w)
		}
		return strings.Join(words, " ")
	}), nil
}

var irregularLemmas = map[string]string{
	"was": "be", "were": "be", "is": "be", "are": "be", "been": "be", "am": "be",
	"has": "have", "had": "have",
	"did": "do", "does": "do", "done": "do",
	"went": "go", "gone": "go", "goes": "go",
	"broke": "break", "broken": "break",
	"took": "take", "taken": "take",
	"came": "come", "got": "get", "gotten": "get",
	"paid": "pay", "made": "make", "said": "say",
	"children": "child", "people": "person", "men": "man", "women": "woman",
	"better": "good", "best": "good", "worse": "bad", "worst": "bad",
}

func lemma(w string) string {
	if l, ok := irregularLemmas[w]; ok {
		return l
	}
	if strings.HasPrefix(w, "[") {
		return w
	}
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && (strings.HasSuffix(w, "sses") || strings.HasSuffix(w, "shes") || strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "xes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:len(w)-1]
	}
	return w
}

// Stem reduces tokens to a crude stem by stripping derivational and
// inflectional suffixes.
type Stem struct {
	Column string
	log    *zap.Logger
}

// NewStem creates a stemming stage.
func NewStem(log *zap.Logger, column string) *Stem {
	return &Stem{Column: column, log: orNop(log)}
}

func (s *Stem) Name() string { return "stem" }

func (s *Stem) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	if skipIfMissing(s.log, s.Name(), d, []string{s.Column}) {
		return d, nil
	}
	return mapStrings(d, []string{s.Column}, func(v string) string {
		words := strings.Fields(v)
		for i, w := range words {
			words[i] = stem(w)
		}
		return strings.Join(words, " ")
	}), nil
}

// Ordered longest first so "ational" wins over "al".
var stemSuffixes = []struct{ suffix, repl string }{
	{"ational", "ate"},
	{"fulness", "ful"},
	{"iveness", "ive"},
	{"ization", "ize"},
	{"ously", "ous"},
	{"ments", ""},
	{"ement", ""},
	{"ment", ""},
	{"ness", ""},
	{"ingly", ""},
	{"edly", ""},
	{"ing", ""},
	{"ed", ""},
	{"ly", ""},
}

// stem only strips when at least three characters remain, which keeps
// short words intact and makes the operation idempotent for the common
// cases it handles.
func stem(w string) string {
	if strings.HasPrefix(w, "[") {
		return w
	}
	for _, s := range stemSuffixes {
		if strings.HasSuffix(w, s.suffix) && len(w)-len(s.suffix) >= 3 {
			return w[:len(w)-len(s.suffix)] + s.repl
		}
	}
	return w
}

var defaultStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true, "and": true, "but": true,
	"or": true, "nor": true, "so": true, "yet": true, "both": true,
	"either": true, "neither": true, "each": true, "every": true, "all": true, "any": true,
	"few": true, "more": true, "most": true, "other": true, "some": true, "such": true,
	"only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "what": true, "which": true, "who": true,
	"whom": true, "this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "about": true, "up": true, "out": true, "also": true,
	"i": true, "me": true, "my": true, "we": true, "our": true, "you": true, "your": true,
	"he": true, "she": true, "they": true, "them": true, "their": true, "there": true,
	"here": true, "then": true, "if": true, "because": true, "while": true,
}
