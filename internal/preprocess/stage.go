// Package preprocess implements the tabular cleaning stages that run before
// validation and classification, and the Builder/Director pair that
// assembles them into named profiles.
package preprocess

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// ErrMissingColumn is wrapped by ConfigError when a stage that cannot run
// without its columns finds them absent.
var ErrMissingColumn = errors.New("required column missing")

// ConfigError is a pipeline misconfiguration. It aborts the run before any
// external service is called.
type ConfigError struct {
	Stage   string
	Columns []string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("stage %s: %v: %s", e.Stage, e.Err, strings.Join(e.Columns, ", "))
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Stage is a single transform over a Dataset. Stages never mutate their
// input; they return the transformed Dataset (which may be the input when
// nothing changed).
type Stage interface {
	Name() string
	Process(d *dataset.Dataset) (*dataset.Dataset, error)
}

// skipIfMissing logs a warning and reports true when any of cols is absent.
func skipIfMissing(log *zap.Logger, stage string, d *dataset.Dataset, cols []string) bool {
	missing := d.Missing(cols...)
	if len(missing) == 0 {
		return false
	}
	log.Warn("stage skipped, target columns missing",
		zap.String("stage", stage),
		zap.Strings("columns", missing))
	return true
}

// presentColumns returns the subset of cols that exist, warning about the rest.
func presentColumns(log *zap.Logger, stage string, d *dataset.Dataset, cols []string) []string {
	var present []string
	for _, c := range cols {
		if d.Has(c) {
			present = append(present, c)
		} else {
			log.Warn("stage column missing", zap.String("stage", stage), zap.String("column", c))
		}
	}
	return present
}

// mapStrings applies fn to every non-missing string value of cols, returning
// a modified clone.
func mapStrings(d *dataset.Dataset, cols []string, fn func(string) string) *dataset.Dataset {
	out := d.Clone()
	for _, c := range cols {
		for i := 0; i < out.Len(); i++ {
			if s, ok := out.Get(i, c).(string); ok {
				out.Set(i, c, fn(s))
			}
		}
	}
	return out
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
