package preprocess

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// Profile names a fixed ordering of preprocessing steps.
type Profile string

const (
	ProfileMinimal  Profile = "minimal"
	ProfileGeneral  Profile = "general"
	ProfileAdvanced Profile = "advanced"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case ProfileMinimal, ProfileGeneral, ProfileAdvanced:
		return p, nil
	case "":
		return ProfileGeneral, nil
	}
	return "", fmt.Errorf("unknown preprocessing profile %q", s)
}

// Options configures the columns each step targets.
type Options struct {
	DedupeColumns    []string
	CriticalColumns  []string
	JoinColumns      []string
	TextColumn       string
	NormalizeColumns []string
	TrimColumns      []string
	ExtraStopwords   []string
	Stem             bool
}

// DefaultOptions returns the column layout of a collected post.
func DefaultOptions() Options {
	return Options{
		DedupeColumns:   []string{dataset.ColTitle, dataset.ColBody},
		CriticalColumns: []string{dataset.ColTitle, dataset.ColBody},
		JoinColumns:     []string{dataset.ColTitle, dataset.ColBody},
		TextColumn:      dataset.ColText,
	}
}

func (o Options) normalizeColumns() []string {
	if len(o.NormalizeColumns) > 0 {
		return o.NormalizeColumns
	}
	return []string{o.TextColumn}
}

// Builder accumulates configured stages, one method per logical step.
type Builder struct {
	opts   Options
	log    *zap.Logger
	stages []Stage
}

// NewBuilder creates an empty builder.
func NewBuilder(opts Options, log *zap.Logger) *Builder {
	if opts.TextColumn == "" {
		opts.TextColumn = dataset.ColText
	}
	return &Builder{opts: opts, log: orNop(log)}
}

func (b *Builder) add(s Stage) *Builder {
	b.stages = append(b.stages, s)
	return b
}

func (b *Builder) RemoveDuplicates() *Builder {
	return b.add(NewDropDuplicates(b.log, b.opts.DedupeColumns...))
}

func (b *Builder) HandleMissingValues() *Builder {
	return b.add(NewDropMissing(b.log, b.opts.CriticalColumns...))
}

func (b *Builder) JoinColumns() *Builder {
	return b.add(NewJoinColumns(b.log, b.opts.TextColumn, b.opts.JoinColumns...))
}

func (b *Builder) NormalizeText() *Builder {
	return b.add(NewNormalizeText(b.log, b.opts.normalizeColumns()...))
}

func (b *Builder) TrimWhitespace() *Builder {
	return b.add(NewTrimWhitespace(b.log, b.opts.TrimColumns...))
}

func (b *Builder) Tokenize() *Builder {
	return b.add(NewTokenize(b.log, b.opts.TextColumn, ColTokens))
}

func (b *Builder) RemoveStopwords() *Builder {
	return b.add(NewRemoveStopwords(b.log, ColTokens, b.opts.ExtraStopwords...))
}

func (b *Builder) Lemmatize() *Builder {
	return b.add(NewLemmatize(b.log, ColTokens))
}

func (b *Builder) Stem() *Builder {
	return b.add(NewStem(b.log, ColTokens))
}

// Build freezes the accumulated stages into a Pipeline and resets the
// builder.
func (b *Builder) Build() *Pipeline {
	p := &Pipeline{stages: b.stages, log: b.log}
	b.stages = nil
	return p
}

// Director knows the step order of each profile. Duplicate removal and
// missing-value handling always come first: normalization can make
// distinct rows identical, and joining would stringify missing values
// into "nan" before they could be dropped.
type Director struct {
	opts Options
	log  *zap.Logger
}

// NewDirector creates a director for the given column options.
func NewDirector(opts Options, log *zap.Logger) *Director {
	return &Director{opts: opts, log: orNop(log)}
}

// Construct builds the pipeline for a profile.
func (d *Director) Construct(p Profile) (*Pipeline, error) {
	b := NewBuilder(d.opts, d.log)
	switch p {
	case ProfileMinimal:
		b.RemoveDuplicates().HandleMissingValues()
	case ProfileGeneral:
		b.RemoveDuplicates().HandleMissingValues().JoinColumns().NormalizeText().TrimWhitespace()
	case ProfileAdvanced:
		b.RemoveDuplicates().HandleMissingValues().JoinColumns().NormalizeText().TrimWhitespace().
			Tokenize().RemoveStopwords().Lemmatize()
		if d.opts.Stem {
			b.Stem()
		}
	default:
		return nil, fmt.Errorf("unknown preprocessing profile %q", p)
	}
	return b.Build(), nil
}

// Pipeline is an immutable ordered list of stages.
type Pipeline struct {
	stages []Stage
	log    *zap.Logger
}

// NewPipeline assembles stages in exactly the given order.
func NewPipeline(log *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, log: orNop(log)}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run applies every stage in order and resets the row index to 0..N-1.
// The input Dataset is not modified.
func (p *Pipeline) Run(d *dataset.Dataset) (*dataset.Dataset, error) {
	out := d.Clone()
	for _, s := range p.stages {
		before := out.Len()
		next, err := s.Process(out)
		if err != nil {
			return nil, fmt.Errorf("preprocessing: %w", err)
		}
		out = next
		p.log.Debug("stage complete",
			zap.String("stage", s.Name()),
			zap.Int("rows_in", before),
			zap.Int("rows_out", out.Len()))
	}
	out.ResetIndex()
	return out, nil
}
