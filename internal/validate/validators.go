package validate

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// NotEmpty flags null, NaN and blank values.
type NotEmpty struct {
	Columns []string
	log     *zap.Logger
}

func NewNotEmpty(log *zap.Logger, cols ...string) *NotEmpty {
	return &NotEmpty{Columns: cols, log: orNop(log)}
}

func (v *NotEmpty) Name() string { return "not_empty" }

func (v *NotEmpty) Validate(d *dataset.Dataset) Result {
	res := OK()
	for _, c := range columnsPresent(v.log, v.Name(), d, v.Columns) {
		var rows []int
		for i := 0; i < d.Len(); i++ {
			if dataset.IsBlank(d.Get(i, c)) {
				rows = append(rows, d.IndexAt(i))
			}
		}
		if len(rows) > 0 {
			res.add(Error{Validator: v.Name(), Column: c, Message: "contains empty values", Rows: rows})
		}
	}
	return res
}

// OnlyString flags values that are not strings. Missing values pass when
// AllowMissing is set.
type OnlyString struct {
	Columns      []string
	AllowMissing bool
	log          *zap.Logger
}

func NewOnlyString(log *zap.Logger, allowMissing bool, cols ...string) *OnlyString {
	return &OnlyString{Columns: cols, AllowMissing: allowMissing, log: orNop(log)}
}

func (v *OnlyString) Name() string { return "only_string" }

func (v *OnlyString) Validate(d *dataset.Dataset) Result {
	res := OK()
	for _, c := range columnsPresent(v.log, v.Name(), d, v.Columns) {
		var rows []int
		for i := 0; i < d.Len(); i++ {
			val := d.Get(i, c)
			if dataset.IsMissing(val) {
				if !v.AllowMissing {
					rows = append(rows, d.IndexAt(i))
				}
				continue
			}
			if _, ok := val.(string); !ok {
				rows = append(rows, d.IndexAt(i))
			}
		}
		if len(rows) > 0 {
			res.add(Error{Validator: v.Name(), Column: c, Message: "contains non-string values", Rows: rows})
		}
	}
	return res
}

// LengthBound is an inclusive character-length range for one column. A
// Max of zero or less leaves the length unbounded above.
type LengthBound struct {
	Column string
	Min    int
	Max    int
}

// Length flags strings whose rune count falls outside the bound. Missing
// values are left to NotEmpty.
type Length struct {
	Bounds []LengthBound
	log    *zap.Logger
}

func NewLength(log *zap.Logger, bounds ...LengthBound) *Length {
	return &Length{Bounds: bounds, log: orNop(log)}
}

func (v *Length) Name() string { return "length" }

func (v *Length) Validate(d *dataset.Dataset) Result {
	res := OK()
	for _, b := range v.Bounds {
		if len(columnsPresent(v.log, v.Name(), d, []string{b.Column})) == 0 {
			continue
		}
		var rows []int
		for i := 0; i < d.Len(); i++ {
			s, ok := d.String(i, b.Column)
			if !ok {
				continue
			}
			n := utf8.RuneCountInString(s)
			if n < b.Min || (b.Max > 0 && n > b.Max) {
				rows = append(rows, d.IndexAt(i))
			}
		}
		if len(rows) > 0 {
			msg := fmt.Sprintf("length outside [%d, %d]", b.Min, b.Max)
			if b.Max <= 0 {
				msg = fmt.Sprintf("length below %d", b.Min)
			}
			res.add(Error{
				Validator: v.Name(),
				Column:    b.Column,
				Message:   msg,
				Rows:      rows,
			})
		}
	}
	return res
}

// Range is a numeric bound for one column. Inclusive controls whether the
// endpoints themselves are allowed.
type Range struct {
	Column    string
	Min       float64
	Max       float64
	Inclusive bool
}

func (r Range) contains(x float64) bool {
	if r.Inclusive {
		return x >= r.Min && x <= r.Max
	}
	return x > r.Min && x < r.Max
}

// NumericRange flags numbers outside a Range. A column holding any
// non-numeric value fails as a whole.
type NumericRange struct {
	Ranges []Range
	log    *zap.Logger
}

func NewNumericRange(log *zap.Logger, ranges ...Range) *NumericRange {
	return &NumericRange{Ranges: ranges, log: orNop(log)}
}

func (v *NumericRange) Name() string { return "numeric_range" }

func (v *NumericRange) Validate(d *dataset.Dataset) Result {
	res := OK()
	for _, r := range v.Ranges {
		if len(columnsPresent(v.log, v.Name(), d, []string{r.Column})) == 0 {
			continue
		}
		var nonNumeric, outside []int
		for i := 0; i < d.Len(); i++ {
			val := d.Get(i, r.Column)
			if dataset.IsMissing(val) {
				continue
			}
			if !dataset.IsNumeric(val) {
				nonNumeric = append(nonNumeric, d.IndexAt(i))
				continue
			}
			x, _ := dataset.ToFloat(val)
			if !r.contains(x) {
				outside = append(outside, d.IndexAt(i))
			}
		}
		if len(nonNumeric) > 0 {
			res.add(Error{Validator: v.Name(), Column: r.Column, Message: "column is not numeric", Rows: nonNumeric})
			continue
		}
		if len(outside) > 0 {
			lo, hi := "(", ")"
			if r.Inclusive {
				lo, hi = "[", "]"
			}
			res.add(Error{
				Validator: v.Name(),
				Column:    r.Column,
				Message:   fmt.Sprintf("values outside %s%g, %g%s", lo, r.Min, r.Max, hi),
				Rows:      outside,
			})
		}
	}
	return res
}

// Pattern is a regular expression every value of Column must match.
type Pattern struct {
	Column string
	Expr   *regexp.Regexp
}

// DefaultSampleSize bounds how many offending values Regex reports.
const DefaultSampleSize = 5

// Regex flags values that do not match their column's pattern. Up to
// SampleSize offending values are included for diagnostics.
type Regex struct {
	Patterns     []Pattern
	AllowMissing bool
	SampleSize   int
	log          *zap.Logger
}

func NewRegex(log *zap.Logger, allowMissing bool, patterns ...Pattern) *Regex {
	return &Regex{Patterns: patterns, AllowMissing: allowMissing, SampleSize: DefaultSampleSize, log: orNop(log)}
}

// MustPattern compiles expr for column, panicking on a bad expression.
func MustPattern(column, expr string) Pattern {
	return Pattern{Column: column, Expr: regexp.MustCompile(expr)}
}

func (v *Regex) Name() string { return "regex" }

func (v *Regex) Validate(d *dataset.Dataset) Result {
	res := OK()
	for _, p := range v.Patterns {
		if len(columnsPresent(v.log, v.Name(), d, []string{p.Column})) == 0 {
			continue
		}
		var rows []int
		var samples []string
		for i := 0; i < d.Len(); i++ {
			val := d.Get(i, p.Column)
			if dataset.IsMissing(val) {
				if !v.AllowMissing {
					rows = append(rows, d.IndexAt(i))
				}
				continue
			}
			s := dataset.Stringify(val)
			if p.Expr.MatchString(s) {
				continue
			}
			rows = append(rows, d.IndexAt(i))
			if len(samples) < v.SampleSize {
				samples = append(samples, s)
			}
		}
		if len(rows) > 0 {
			res.add(Error{
				Validator: v.Name(),
				Column:    p.Column,
				Message:   fmt.Sprintf("values do not match %s", p.Expr),
				Rows:      rows,
				Samples:   samples,
			})
		}
	}
	return res
}
