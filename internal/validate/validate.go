// Package validate checks Dataset preconditions before any external
// service is called.
//
// Each Validator reports every violating row for its own check. A Chain
// runs validators in order and stops at the first one that fails, so a
// caller sees one validator's complete findings at a time.
package validate

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// Error is one validator finding for one column.
type Error struct {
	Validator string   `json:"validator"`
	Column    string   `json:"column"`
	Message   string   `json:"message"`
	Rows      []int    `json:"invalid_row_indices"`
	Samples   []string `json:"samples,omitempty"`
}

// Result aggregates validator findings.
type Result struct {
	Success bool    `json:"success"`
	Errors  []Error `json:"errors"`
}

// OK returns a successful, empty result.
func OK() Result {
	return Result{Success: true}
}

func (r *Result) add(e Error) {
	r.Success = false
	r.Errors = append(r.Errors, e)
}

// Merge folds o into r.
func (r *Result) Merge(o Result) {
	if !o.Success {
		r.Success = false
	}
	r.Errors = append(r.Errors, o.Errors...)
}

// Err converts a failed result into an error value, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &FailedError{Result: r}
}

// FailedError carries a failed Result through error returns.
type FailedError struct {
	Result Result
}

func (e *FailedError) Error() string {
	parts := make([]string, len(e.Result.Errors))
	for i, v := range e.Result.Errors {
		parts[i] = fmt.Sprintf("%s[%s]: %s (%d rows)", v.Validator, v.Column, v.Message, len(v.Rows))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks one precondition over a Dataset.
type Validator interface {
	Name() string
	Validate(d *dataset.Dataset) Result
}

// Chain runs validators in a fixed order, stopping at the first failure.
type Chain struct {
	validators []Validator
}

// NewChain builds an immutable chain. Order is execution order.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// Names returns the validator names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.validators))
	for i, v := range c.validators {
		names[i] = v.Name()
	}
	return names
}

// Validate runs each validator in turn. The next validator only runs when
// the current one found no violations.
func (c *Chain) Validate(d *dataset.Dataset) Result {
	res := OK()
	for _, v := range c.validators {
		r := v.Validate(d)
		res.Merge(r)
		if !r.Success {
			return res
		}
	}
	return res
}

// columnsPresent filters cols to the ones in d. Absent columns are a
// warning, not a failure.
func columnsPresent(log *zap.Logger, validator string, d *dataset.Dataset, cols []string) []string {
	var present []string
	for _, c := range cols {
		if !d.Has(c) {
			log.Warn("validation column missing",
				zap.String("validator", validator),
				zap.String("column", c))
			continue
		}
		present = append(present, c)
	}
	return present
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
