// Package dataset holds the in-memory table of posts that flows through
// every pipeline stage.
//
// A Dataset is column-major: each named column is a slice of values with
// one entry per row. Missing values are stored as nil; float64 NaN is also
// treated as missing so numeric columns read from external sources behave
// the same way. Each row carries an index label that survives filtering, so
// derived fields can always be traced back to the source post.
package dataset

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Well-known column names used across the pipeline.
const (
	ColID        = "id"
	ColTitle     = "title"
	ColBody      = "body"
	ColURL       = "url"
	ColTimestamp = "timestamp"
	ColText      = "text"
	ColVotes     = "votes"
	ColComments  = "comments"

	ColIntent     = "intent"
	ColDomain     = "domain"
	ColConfidence = "confidence"
	ColSentiment  = "sentiment"
	ColImportance = "importance"
	ColEmotion    = "emotion"
	ColEngagement = "engagement_score"
)

// Record is one row as a column → value map.
type Record map[string]any

// Dataset is an ordered collection of rows sharing one column schema.
type Dataset struct {
	columns []string
	data    map[string][]any
	index   []int
}

// New creates an empty Dataset with the given columns.
func New(columns ...string) *Dataset {
	d := &Dataset{data: make(map[string][]any, len(columns))}
	for _, c := range columns {
		if _, ok := d.data[c]; ok {
			continue
		}
		d.columns = append(d.columns, c)
		d.data[c] = nil
	}
	return d
}

// FromRecords builds a Dataset from records. The column order is the
// order in which keys are first seen, with keys of each record sorted so
// the result is deterministic.
func FromRecords(records []Record) *Dataset {
	d := New()
	for _, r := range records {
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if !d.Has(k) {
				d.addColumn(k)
			}
		}
	}
	for _, r := range records {
		d.AppendRow(r)
	}
	return d
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.index)
}

// Columns returns the column names in schema order.
func (d *Dataset) Columns() []string {
	return slices.Clone(d.columns)
}

// Has reports whether the column exists.
func (d *Dataset) Has(col string) bool {
	_, ok := d.data[col]
	return ok
}

// Missing returns the subset of cols that are not in the schema.
func (d *Dataset) Missing(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if !d.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the row index labels.
func (d *Dataset) Index() []int {
	return slices.Clone(d.index)
}

// IndexAt returns the index label of row i.
func (d *Dataset) IndexAt(i int) int {
	return d.index[i]
}

// AppendRow adds a row. Keys not in the schema are added as new columns,
// back-filled with nil for existing rows. The new row gets the next index
// label after the current maximum.
func (d *Dataset) AppendRow(r Record) {
	for k := range r {
		if !d.Has(k) {
			d.addColumn(k)
		}
	}
	next := 0
	if n := len(d.index); n > 0 {
		next = slices.Max(d.index) + 1
	}
	d.index = append(d.index, next)
	for _, c := range d.columns {
		d.data[c] = append(d.data[c], r[c])
	}
}

func (d *Dataset) addColumn(col string) {
	d.columns = append(d.columns, col)
	d.data[col] = make([]any, len(d.index))
}

// Get returns the value at row i of col, or nil when the column is absent.
func (d *Dataset) Get(i int, col string) any {
	vals, ok := d.data[col]
	if !ok {
		return nil
	}
	return vals[i]
}

// Set writes a value, adding the column when needed.
func (d *Dataset) Set(i int, col string, v any) {
	if !d.Has(col) {
		d.addColumn(col)
	}
	d.data[col][i] = v
}

// Column returns a copy of a column's values.
func (d *Dataset) Column(col string) []any {
	return slices.Clone(d.data[col])
}

// SetColumn replaces or adds a whole column. vals must have Len() entries.
func (d *Dataset) SetColumn(col string, vals []any) error {
	if len(vals) != d.Len() {
		return fmt.Errorf("column %q has %d values, dataset has %d rows", col, len(vals), d.Len())
	}
	if !d.Has(col) {
		d.columns = append(d.columns, col)
	}
	d.data[col] = slices.Clone(vals)
	return nil
}

// String returns the value at row i of col as a string. ok is false for
// missing values.
func (d *Dataset) String(i int, col string) (string, bool) {
	v := d.Get(i, col)
	if IsMissing(v) {
		return "", false
	}
	return Stringify(v), true
}

// Float returns the value at row i of col as a float64. ok is false for
// missing or non-numeric values.
func (d *Dataset) Float(i int, col string) (float64, bool) {
	v := d.Get(i, col)
	if IsMissing(v) {
		return 0, false
	}
	return ToFloat(v)
}

// Row returns row i as a Record.
func (d *Dataset) Row(i int) Record {
	r := make(Record, len(d.columns))
	for _, c := range d.columns {
		r[c] = d.data[c][i]
	}
	return r
}

// Records returns every row as a Record.
func (d *Dataset) Records() []Record {
	out := make([]Record, d.Len())
	for i := range out {
		out[i] = d.Row(i)
	}
	return out
}

// Filter returns a new Dataset containing the rows for which keep returns
// true. Index labels are carried over unchanged.
func (d *Dataset) Filter(keep func(i int) bool) *Dataset {
	var rows []int
	for i := range d.index {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return d.Take(rows)
}

// Take returns a new Dataset holding the given rows, in the given order.
func (d *Dataset) Take(rows []int) *Dataset {
	out := New(d.columns...)
	out.index = make([]int, len(rows))
	for j, i := range rows {
		out.index[j] = d.index[i]
	}
	for _, c := range d.columns {
		src := d.data[c]
		vals := make([]any, len(rows))
		for j, i := range rows {
			vals[j] = src[i]
		}
		out.data[c] = vals
	}
	return out
}

// Clone returns a deep copy of the table structure. Values themselves are
// shared, which is safe because they are immutable scalars.
func (d *Dataset) Clone() *Dataset {
	out := New(d.columns...)
	out.index = slices.Clone(d.index)
	for _, c := range d.columns {
		out.data[c] = slices.Clone(d.data[c])
	}
	return out
}

// ResetIndex relabels rows to the dense range 0..Len()-1.
func (d *Dataset) ResetIndex() {
	for i := range d.index {
		d.index[i] = i
	}
}

// Equal reports whether two datasets have the same schema, index and values.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if !slices.Equal(d.columns, o.columns) || !slices.Equal(d.index, o.index) {
		return false
	}
	for _, c := range d.columns {
		a, b := d.data[c], o.data[c]
		for i := range a {
			if !valueEqual(a[i], b[i]) {
				return false
			}
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if IsMissing(a) || IsMissing(b) {
		return IsMissing(a) && IsMissing(b)
	}
	fa, okA := ToFloat(a)
	fb, okB := ToFloat(b)
	if okA && okB {
		return fa == fb
	}
	return a == b
}

// IsMissing reports whether v is a missing value: nil or float NaN.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// IsBlank reports whether v is missing or a whitespace-only string.
func IsBlank(v any) bool {
	if IsMissing(v) {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// ToFloat converts numeric values (and numeric strings) to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// IsNumeric reports whether v is a Go numeric type. Numeric strings do not
// count.
func IsNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint64:
		return true
	}
	return false
}

// Stringify renders a value the way text columns expect it. Missing values
// render as "nan".
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "nan"
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return "nan"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return Stringify(float64(x))
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
