// Package sentiment scores post text for sentiment and a coarse emotion
// label.
//
// The rest of the system treats a classifier as a black box that takes a
// dataset and returns it with score and label columns added. Lexicon is
// the built-in implementation; model-backed classifiers satisfy the same
// interface.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

// ColLexiconSentiment is the score column written by Lexicon.
const ColLexiconSentiment = "lexicon_sentiment"

// Emotion labels.
const (
	EmotionAnger   = "anger"
	EmotionJoy     = "joy"
	EmotionSadness = "sadness"
	EmotionFear    = "fear"
	EmotionNeutral = "neutral"
)

// Classifier adds sentiment columns to a dataset.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, d *dataset.Dataset, textColumns []string) (*dataset.Dataset, error)
}

// Lexicon is a rule-based classifier over a word valence table with
// negation and intensifier handling.
type Lexicon struct {
	ScoreColumn   string
	EmotionColumn string
	log           *zap.Logger
}

// NewLexicon creates a lexicon classifier writing ColLexiconSentiment and
// dataset.ColEmotion.
func NewLexicon(log *zap.Logger) *Lexicon {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lexicon{ScoreColumn: ColLexiconSentiment, EmotionColumn: dataset.ColEmotion, log: log}
}

func (l *Lexicon) Name() string { return "lexicon" }

// Classify scores the space-joined text of textColumns for every row.
// Absent columns are skipped with a warning; a row with no text scores 0
// and is labelled neutral.
func (l *Lexicon) Classify(ctx context.Context, d *dataset.Dataset, textColumns []string) (*dataset.Dataset, error) {
	var cols []string
	for _, c := range textColumns {
		if !d.Has(c) {
			l.log.Warn("sentiment text column missing", zap.String("column", c))
			continue
		}
		cols = append(cols, c)
	}

	scores := make([]any, d.Len())
	emotions := make([]any, d.Len())
	for i := 0; i < d.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sentiment: %w", err)
		}
		var parts []string
		for _, c := range cols {
			if s, ok := d.String(i, c); ok {
				parts = append(parts, s)
			}
		}
		words := words(strings.Join(parts, " "))
		scores[i] = Score(words)
		emotions[i] = Emotion(words)
	}

	out := d.Clone()
	if err := out.SetColumn(l.ScoreColumn, scores); err != nil {
		return nil, err
	}
	if err := out.SetColumn(l.EmotionColumn, emotions); err != nil {
		return nil, err
	}
	return out, nil
}

// words lowercases and splits text, keeping bracketed sentinel tokens such
// as [frown] whole.
func words(text string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		if strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]") {
			out = append(out, f)
			continue
		}
		f = strings.TrimFunc(f, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// normalizeAlpha controls how quickly summed valence saturates.
const normalizeAlpha = 15.0

// Score returns a sentiment in [-1, 1]. A negator flips the valence of
// the next three words; an intensifier scales the next word.
func Score(words []string) float64 {
	var sum float64
	negateFor := 0
	boost := 1.0
	for _, w := range words {
		if negators[w] {
			negateFor = 3
			continue
		}
		if b, ok := intensifiers[w]; ok {
			boost = b
			continue
		}
		v, ok := valence[w]
		if ok {
			if negateFor > 0 {
				v = -v * 0.75
			}
			sum += v * boost
		}
		boost = 1.0
		if negateFor > 0 {
			negateFor--
		}
	}
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+normalizeAlpha)
}

// Emotion returns the label with the most cue words, or neutral when none
// or a tie.
func Emotion(words []string) string {
	counts := make(map[string]int)
	for _, w := range words {
		if e, ok := emotionCues[w]; ok {
			counts[e]++
		}
	}
	best, bestN, tie := EmotionNeutral, 0, false
	for _, e := range []string{EmotionAnger, EmotionSadness, EmotionFear, EmotionJoy} {
		switch n := counts[e]; {
		case n > bestN:
			best, bestN, tie = e, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if tie {
		return EmotionNeutral
	}
	return best
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "doesn't": true, "didn't": true,
	"isn't": true, "wasn't": true, "aren't": true, "can't": true, "cannot": true, "won't": true,
	"nothing": true, "hardly": true,
}

var intensifiers = map[string]float64{
	"very": 1.5, "really": 1.4, "extremely": 1.8, "so": 1.3, "totally": 1.5,
	"absolutely": 1.6, "super": 1.4, "slightly": 0.6, "somewhat": 0.7,
}

var valence = map[string]float64{
	// negative
	"unacceptable": -3, "terrible": -3, "horrible": -3, "awful": -3, "worst": -3.2,
	"disgusting": -3, "useless": -2.5, "ridiculous": -2.3, "pathetic": -2.8,
	"bad": -2.2, "poor": -2, "broken": -1.8, "breakdown": -2, "delay": -1.5,
	"delayed": -1.6, "late": -1.3, "slow": -1.4, "dirty": -1.8, "crowded": -1.5,
	"expensive": -1.6, "overpriced": -2, "unsafe": -2.3, "dangerous": -2.5,
	"angry": -2.5, "frustrated": -2.2, "frustrating": -2.3, "annoying": -2,
	"sad": -2, "disappointed": -2.2, "disappointing": -2.2, "fail": -2, "failed": -2.2,
	"failure": -2.3, "problem": -1.5, "issue": -1.2, "complaint": -1.5, "again": -0.5,
	"worse": -2.5, "hate": -3, "scared": -2, "worried": -1.8, "stuck": -1.5,
	"[frown]": -2, "[cry]": -2.2, "[angry]": -2.5, "[skeptical]": -0.8,
	// positive
	"good": 1.9, "great": 3, "excellent": 3.2, "best": 3, "love": 3, "nice": 1.8,
	"happy": 2.7, "clean": 1.5, "fast": 1.5, "efficient": 1.8, "helpful": 2,
	"thanks": 1.9, "thank": 1.9, "improved": 2, "better": 1.9, "smooth": 1.6,
	"affordable": 1.8, "safe": 1.5, "delicious": 2.5, "recommend": 1.5,
	"[smile]": 2, "[laugh]": 2.5, "[heart]": 2.5, "[wink]": 1.2,
}

var emotionCues = map[string]string{
	"angry": EmotionAnger, "furious": EmotionAnger, "unacceptable": EmotionAnger,
	"ridiculous": EmotionAnger, "hate": EmotionAnger, "pathetic": EmotionAnger,
	"outrageous": EmotionAnger, "frustrated": EmotionAnger, "[angry]": EmotionAnger,
	"happy": EmotionJoy, "great": EmotionJoy, "love": EmotionJoy, "excellent": EmotionJoy,
	"thanks": EmotionJoy, "[smile]": EmotionJoy, "[laugh]": EmotionJoy, "[heart]": EmotionJoy,
	"sad": EmotionSadness, "disappointed": EmotionSadness, "miss": EmotionSadness,
	"lonely": EmotionSadness, "[frown]": EmotionSadness, "[cry]": EmotionSadness,
	"scared": EmotionFear, "afraid": EmotionFear, "worried": EmotionFear,
	"unsafe": EmotionFear, "dangerous": EmotionFear,
}
