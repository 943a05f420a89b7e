package sentiment

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

func TestScoreSign(t *testing.T) {
	neg := Score(words("mrt breakdown again, unacceptable [frown]"))
	if neg >= 0 {
		t.Errorf("expected negative score, got %f", neg)
	}
	pos := Score(words("great service, thanks :)"))
	if pos <= 0 {
		t.Errorf("expected positive score, got %f", pos)
	}
	if got := Score(words("what's the best laksa in singapore?")); got <= 0 {
		t.Errorf("expected mildly positive score, got %f", got)
	}
	if got := Score(nil); got != 0 {
		t.Errorf("expected 0 for no words, got %f", got)
	}
}

func TestScoreBounded(t *testing.T) {
	text := "terrible awful horrible worst disgusting useless pathetic unacceptable terrible awful"
	if got := Score(words(text)); got < -1 || got > -0.9 {
		t.Errorf("expected saturated negative score in [-1, -0.9], got %f", got)
	}
}

func TestNegationFlips(t *testing.T) {
	plain := Score(words("the bus is good"))
	negated := Score(words("the bus is not good"))
	if plain <= 0 || negated >= 0 {
		t.Errorf("expected negation to flip sign: plain=%f negated=%f", plain, negated)
	}
}

func TestIntensifierScales(t *testing.T) {
	plain := Score(words("bad"))
	strong := Score(words("extremely bad"))
	if strong >= plain {
		t.Errorf("expected intensified score %f to be below %f", strong, plain)
	}
}

func TestEmotion(t *testing.T) {
	cases := map[string]string{
		"this is unacceptable and ridiculous": EmotionAnger,
		"so happy with the new line [smile]":  EmotionJoy,
		"i feel unsafe walking here":          EmotionFear,
		"the bus came at nine":                EmotionNeutral,
		"happy but sad":                       EmotionNeutral,
	}
	for text, want := range cases {
		if got := Emotion(words(text)); got != want {
			t.Errorf("Emotion(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestLexiconClassify(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := dataset.FromRecords([]dataset.Record{
		{dataset.ColTitle: "Lift broken", dataset.ColBody: "third time this month, unacceptable"},
		{dataset.ColTitle: "Thanks", dataset.ColBody: nil},
	})

	out, err := NewLexicon(zap.New(core)).Classify(context.Background(), d,
		[]string{dataset.ColTitle, dataset.ColBody, "absent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, _ := out.Float(0, ColLexiconSentiment); s >= 0 {
		t.Errorf("row 0: expected negative score, got %f", s)
	}
	if s, _ := out.Float(1, ColLexiconSentiment); s <= 0 {
		t.Errorf("row 1: expected positive score, got %f", s)
	}
	if e, _ := out.String(0, dataset.ColEmotion); e != EmotionAnger {
		t.Errorf("row 0: expected anger, got %q", e)
	}
	if d.Has(ColLexiconSentiment) {
		t.Error("input dataset must not be modified")
	}
	if logs.FilterMessage("sentiment text column missing").Len() != 1 {
		t.Errorf("expected missing-column warning, got %v", logs.All())
	}
}

func TestLexiconHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := dataset.FromRecords([]dataset.Record{{dataset.ColText: "x"}})
	if _, err := NewLexicon(nil).Classify(ctx, d, []string{dataset.ColText}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
