package preprocess

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// UnknownToken replaces null-like text during normalization.
const UnknownToken = "[Unknown]"

// DropDuplicates removes rows whose key columns repeat an earlier row,
// keeping the first occurrence. With no columns configured every column is
// part of the key.
type DropDuplicates struct {
	Columns []string
	log     *zap.Logger
}

// NewDropDuplicates creates a duplicate-removal stage keyed on cols.
func NewDropDuplicates(log *zap.Logger, cols ...string) *DropDuplicates {
	return &DropDuplicates{Columns: cols, log: orNop(log)}
}

func (s *DropDuplicates) Name() string { return "remove_duplicates" }

func (s *DropDuplicates) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	cols := s.Columns
	if len(cols) == 0 {
		cols = d.Columns()
	}
	if skipIfMissing(s.log, s.Name(), d, cols) {
		return d, nil
	}

	seen := make(map[string]struct{}, d.Len())
	out := d.Filter(func(i int) bool {
		k := rowKey(d, i, cols)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
	if dropped := d.Len() - out.Len(); dropped > 0 {
		s.log.Debug("duplicates removed", zap.Int("rows", dropped))
	}
	return out, nil
}

func rowKey(d *dataset.Dataset, i int, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		v := d.Get(i, c)
		if dataset.IsMissing(v) {
			b.WriteString("\x00")
		} else {
			b.WriteString(dataset.Stringify(v))
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

// DropMissing removes rows where any critical column is null, NaN or blank.
// Unlike the other stages, absent critical columns are a configuration
// error rather than a no-op.
type DropMissing struct {
	Columns []string
	log     *zap.Logger
}

// NewDropMissing creates a missing-value stage over the critical columns.
func NewDropMissing(log *zap.Logger, critical ...string) *DropMissing {
	return &DropMissing{Columns: critical, log: orNop(log)}
}

func (s *DropMissing) Name() string { return "handle_missing_values" }

func (s *DropMissing) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	if missing := d.Missing(s.Columns...); len(missing) > 0 {
		return nil, &ConfigError{Stage: s.Name(), Columns: missing, Err: ErrMissingColumn}
	}
	out := d.Filter(func(i int) bool {
		for _, c := range s.Columns {
			if dataset.IsBlank(d.Get(i, c)) {
				return false
			}
		}
		return true
	})
	if dropped := d.Len() - out.Len(); dropped > 0 {
		s.log.Debug("rows with missing values removed", zap.Int("rows", dropped))
	}
	return out, nil
}

// JoinColumns concatenates text columns into Target with single spaces.
// Non-string values are stringified first, so a missing value becomes the
// literal "nan".
type JoinColumns struct {
	Columns []string
	Target  string
	log     *zap.Logger
}

// NewJoinColumns creates a concatenation stage writing into target.
func NewJoinColumns(log *zap.Logger, target string, cols ...string) *JoinColumns {
	return &JoinColumns{Columns: cols, Target: target, log: orNop(log)}
}

func (s *JoinColumns) Name() string { return "join_columns" }

func (s *JoinColumns) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	if skipIfMissing(s.log, s.Name(), d, s.Columns) {
		return d, nil
	}
	out := d.Clone()
	parts := make([]string, len(s.Columns))
	for i := 0; i < out.Len(); i++ {
		for j, c := range s.Columns {
			parts[j] = dataset.Stringify(out.Get(i, c))
		}
		out.Set(i, s.Target, strings.Join(parts, " "))
	}
	return out, nil
}

// TrimWhitespace strips leading and trailing whitespace from string values.
// With no columns configured it applies to every column.
type TrimWhitespace struct {
	Columns []string
	log     *zap.Logger
}

// NewTrimWhitespace creates a trimming stage.
func NewTrimWhitespace(log *zap.Logger, cols ...string) *TrimWhitespace {
	return &TrimWhitespace{Columns: cols, log: orNop(log)}
}

func (s *TrimWhitespace) Name() string { return "trim_whitespace" }

func (s *TrimWhitespace) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	cols := s.Columns
	if len(cols) == 0 {
		cols = d.Columns()
	}
	cols = presentColumns(s.log, s.Name(), d, cols)
	if len(cols) == 0 {
		return d, nil
	}
	return mapStrings(d, cols, strings.TrimSpace), nil
}

// NormalizeText lowercases, trims and collapses whitespace, replaces common
// emoticons with bracketed tokens and maps null-like values to
// UnknownToken.
type NormalizeText struct {
	Columns []string
	log     *zap.Logger
}

// NewNormalizeText creates a normalization stage over cols.
func NewNormalizeText(log *zap.Logger, cols ...string) *NormalizeText {
	return &NormalizeText{Columns: cols, log: orNop(log)}
}

func (s *NormalizeText) Name() string { return "normalize_text" }

func (s *NormalizeText) Process(d *dataset.Dataset) (*dataset.Dataset, error) {
	cols := presentColumns(s.log, s.Name(), d, s.Columns)
	if len(cols) == 0 {
		return d, nil
	}
	out := d.Clone()
	for _, c := range cols {
		for i := 0; i < out.Len(); i++ {
			v := out.Get(i, c)
			if dataset.IsMissing(v) {
				out.Set(i, c, UnknownToken)
				continue
			}
			if s, ok := v.(string); ok {
				out.Set(i, c, Normalize(s))
			}
		}
	}
	return out, nil
}

var emoticons = map[string]string{
	":)":  "[smile]",
	":-)": "[smile]",
	":]":  "[smile]",
	"=)":  "[smile]",
	":(":  "[frown]",
	":-(": "[frown]",
	":[":  "[frown]",
	":D":  "[laugh]",
	":-D": "[laugh]",
	"xD":  "[laugh]",
	"XD":  "[laugh]",
	";)":  "[wink]",
	";-)": "[wink]",
	":'(": "[cry]",
	":P":  "[tongue]",
	":p":  "[tongue]",
	":/":  "[skeptical]",
	":-/": "[skeptical]",
	"<3":  "[heart]",
}

var nullTokens = map[string]struct{}{
	"":          {},
	"nan":       {},
	"none":      {},
	"null":      {},
	"nil":       {},
	"n/a":       {},
	"na":        {},
	"[deleted]": {},
	"[removed]": {},
	"[unknown]": {},
}

// Normalize applies the text normalization rules to a single value. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	fields := strings.Fields(s)
	joined := strings.Join(fields, " ")
	if _, ok := nullTokens[strings.ToLower(joined)]; ok {
		return UnknownToken
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, splitEmoticons(f)...)
	}
	return strings.Join(out, " ")
}

// attachedEmoticons are the emoticons recognised at the end of a word,
// longest first. Letter-initial ones like "xD" only count standalone.
var attachedEmoticons = func() []string {
	var keys []string
	for k := range emoticons {
		if r, _ := utf8.DecodeRuneInString(k); !unicode.IsLetter(r) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// splitEmoticons turns one whitespace token into the lowercased word plus
// a tag for each emoticon glued to its end, so "late:(" becomes
// "late [frown]".
func splitEmoticons(f string) []string {
	var tags []string
	for {
		if tok, ok := emoticons[f]; ok {
			return append([]string{tok}, tags...)
		}
		key := ""
		for _, k := range attachedEmoticons {
			if len(f) > len(k) && strings.HasSuffix(f, k) {
				key = k
				break
			}
		}
		if key == "" {
			break
		}
		tags = append([]string{emoticons[key]}, tags...)
		f = f[:len(f)-len(key)]
	}
	return append([]string{strings.ToLower(f)}, tags...)
}
