package preprocess

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

func posts() *dataset.Dataset {
	return dataset.FromRecords([]dataset.Record{
		{dataset.ColTitle: "Bus late", dataset.ColBody: "again"},
		{dataset.ColTitle: "BUS  late", dataset.ColBody: "Again"},
		{dataset.ColTitle: "Hello", dataset.ColBody: nil},
		{dataset.ColTitle: "Lift down", dataset.ColBody: nil},
	})
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  MRT   Breakdown AGAIN ": "mrt breakdown again",
		"so slow :(":              "so slow [frown]",
		"great :D <3":             "great [laugh] [heart]",
		"N/A":                     UnknownToken,
		"[deleted]":               UnknownToken,
		"":                        UnknownToken,
		"nan":                     UnknownToken,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeAttachedEmoticons(t *testing.T) {
	cases := map[string]string{
		"Great:)":          "great [smile]",
		"late again:(":     "late again [frown]",
		"why:-/":           "why [skeptical]",
		"love it:):)":      "love it [smile] [smile]",
		"fixD":             "fixd",
		"https://mrt.sg/a": "https://mrt.sg/a",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{"Hello :) World", "[Unknown]", "NULL", "a\tb\nc", ":-D xD", "Great:):(", "why:-/"} {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestStagesIdempotent(t *testing.T) {
	stages := []Stage{
		NewDropDuplicates(nil, dataset.ColTitle, dataset.ColBody),
		NewTrimWhitespace(nil),
		NewNormalizeText(nil, dataset.ColTitle, dataset.ColBody),
	}
	for _, s := range stages {
		once, err := s.Process(posts())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", s.Name(), err)
		}
		twice, err := s.Process(once)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", s.Name(), err)
		}
		if !once.Equal(twice) {
			t.Errorf("%s is not idempotent", s.Name())
		}
	}
}

func TestDropDuplicatesKeepsFirst(t *testing.T) {
	d := dataset.FromRecords([]dataset.Record{
		{dataset.ColID: "1", dataset.ColTitle: "same"},
		{dataset.ColID: "2", dataset.ColTitle: "same"},
		{dataset.ColID: "3", dataset.ColTitle: "other"},
	})
	out, err := NewDropDuplicates(nil, dataset.ColTitle).Process(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{"1", "3"}, out.Column(dataset.ColID)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2}, out.Index()); diff != "" {
		t.Errorf("index labels should survive filtering (-want +got):\n%s", diff)
	}
}

func TestDropMissingTreatsBlankAsMissing(t *testing.T) {
	d := dataset.FromRecords([]dataset.Record{
		{dataset.ColBody: "text"},
		{dataset.ColBody: "   "},
		{dataset.ColBody: nil},
	})
	out, err := NewDropMissing(nil, dataset.ColBody).Process(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 1 {
		t.Errorf("expected 1 row, got %d", out.Len())
	}
}

func TestDropMissingAbsentColumnIsConfigError(t *testing.T) {
	p := NewPipeline(nil, NewDropMissing(nil, "nonexistent"))
	_, err := p.Run(posts())

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, ErrMissingColumn) {
		t.Error("expected error to wrap ErrMissingColumn")
	}
	if diff := cmp.Diff([]string{"nonexistent"}, cfgErr.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestStageSkipsAbsentColumnsWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	in := posts()
	out, err := NewJoinColumns(log, dataset.ColText, dataset.ColTitle, "missing").Process(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Equal(in) {
		t.Error("expected dataset to be unchanged")
	}
	if logs.FilterMessage("stage skipped, target columns missing").Len() != 1 {
		t.Errorf("expected one skip warning, got %v", logs.All())
	}
}

func TestJoinColumnsStringifiesMissing(t *testing.T) {
	d := dataset.FromRecords([]dataset.Record{
		{dataset.ColTitle: "Hello", dataset.ColBody: nil, dataset.ColVotes: 3},
	})
	out, err := NewJoinColumns(nil, dataset.ColText, dataset.ColTitle, dataset.ColBody, dataset.ColVotes).Process(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := out.String(0, dataset.ColText); got != "Hello nan 3" {
		t.Errorf("expected 'Hello nan 3', got %q", got)
	}
}

func TestStageOrderMatters(t *testing.T) {
	dedupe := NewDropDuplicates(nil, dataset.ColTitle, dataset.ColBody)
	missing := NewDropMissing(nil, dataset.ColTitle, dataset.ColBody)
	join := NewJoinColumns(nil, dataset.ColText, dataset.ColTitle, dataset.ColBody)
	normalize := NewNormalizeText(nil, dataset.ColTitle, dataset.ColBody, dataset.ColText)

	documented, err := NewPipeline(nil, dedupe, missing, join, normalize).Run(posts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reversed, err := NewPipeline(nil, join, normalize, dedupe, missing).Run(posts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if documented.Len() != 2 {
		t.Errorf("documented order: expected 2 rows, got %d", documented.Len())
	}
	if reversed.Len() != 3 {
		t.Errorf("reversed order: expected 3 rows, got %d", reversed.Len())
	}
	for i := 0; i < reversed.Len(); i++ {
		if text, _ := reversed.String(i, dataset.ColText); strings.Contains(text, "nan") {
			return
		}
	}
	t.Error("expected a literal 'nan' to leak into joined text when missing values are not removed first")
}

func TestDirectorProfiles(t *testing.T) {
	dir := NewDirector(DefaultOptions(), nil)
	cases := map[Profile][]string{
		ProfileMinimal: {"remove_duplicates", "handle_missing_values"},
		ProfileGeneral: {"remove_duplicates", "handle_missing_values", "join_columns", "normalize_text", "trim_whitespace"},
		ProfileAdvanced: {"remove_duplicates", "handle_missing_values", "join_columns", "normalize_text", "trim_whitespace",
			"tokenize", "remove_stopwords", "lemmatize"},
	}
	for profile, want := range cases {
		p, err := dir.Construct(profile)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", profile, err)
		}
		if diff := cmp.Diff(want, p.Stages()); diff != "" {
			t.Errorf("%s stages mismatch (-want +got):\n%s", profile, diff)
		}
	}
	if _, err := dir.Construct("exotic"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestGeneralProfileResetsIndex(t *testing.T) {
	p, err := NewDirector(DefaultOptions(), nil).Construct(ProfileGeneral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := dataset.FromRecords([]dataset.Record{
		{dataset.ColTitle: "First", dataset.ColBody: nil},
		{dataset.ColTitle: "MRT breakdown", dataset.ColBody: "again, unacceptable :("},
		{dataset.ColTitle: "Laksa", dataset.ColBody: "Best in Singapore?"},
	})
	out, err := p.Run(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int{0, 1}, out.Index()); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	if got, _ := out.String(0, dataset.ColText); got != "mrt breakdown again, unacceptable [frown]" {
		t.Errorf("unexpected text %q", got)
	}
	if in.Len() != 3 {
		t.Error("input dataset must not be modified")
	}
}

func TestAdvancedProfileTokens(t *testing.T) {
	opts := DefaultOptions()
	opts.Stem = true
	p, err := NewDirector(opts, nil).Construct(ProfileAdvanced)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := dataset.FromRecords([]dataset.Record{
		{dataset.ColTitle: "The trains were delayed", dataset.ColBody: "Lifts are broken :("},
	})
	out, err := p.Run(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := out.String(0, ColTokens)
	if got != "train delay lift break [frown]" {
		t.Errorf("unexpected tokens %q", got)
	}
}
