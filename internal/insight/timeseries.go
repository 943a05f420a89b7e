package insight

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
)

const dateLayout = "2006-01-02"

// DailyPoint is one category's mean sentiment on one day.
type DailyPoint struct {
	Date time.Time
	Mean float64
}

// seriesSource names the columns a time series is read from.
type seriesSource struct {
	data      *dataset.Dataset
	date      string
	category  string
	sentiment string
}

// pickSeries prefers the history dataset and falls back to the posts.
func pickSeries(in *Input, sentimentColumn string) seriesSource {
	if h := in.History; h != nil && h.Len() > 0 {
		return seriesSource{data: h, date: ColDate, category: ColCategory, sentiment: ColSentiment}
	}
	return seriesSource{data: in.Posts, date: dataset.ColTimestamp, category: dataset.ColDomain, sentiment: sentimentColumn}
}

// dailySeries groups rows by category and day and averages sentiment.
// Rows with an unparsable date or missing value are skipped.
func dailySeries(s seriesSource) map[string][]DailyPoint {
	type acc struct{ sum, n float64 }
	byCat := make(map[string]map[time.Time]*acc)
	for i := 0; i < s.data.Len(); i++ {
		cat, ok := s.data.String(i, s.category)
		if !ok {
			continue
		}
		day, ok := parseDate(s.data.Get(i, s.date))
		if !ok {
			continue
		}
		v, ok := s.data.Float(i, s.sentiment)
		if !ok {
			continue
		}
		days := byCat[cat]
		if days == nil {
			days = make(map[time.Time]*acc)
			byCat[cat] = days
		}
		a := days[day]
		if a == nil {
			a = &acc{}
			days[day] = a
		}
		a.sum += v
		a.n++
	}

	out := make(map[string][]DailyPoint, len(byCat))
	for cat, days := range byCat {
		pts := make([]DailyPoint, 0, len(days))
		for day, a := range days {
			pts = append(pts, DailyPoint{Date: day, Mean: a.sum / a.n})
		}
		sort.Slice(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })
		out[cat] = pts
	}
	return out
}

// parseDate truncates a timestamp value to its UTC day.
func parseDate(v any) (time.Time, bool) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		var err error
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", dateLayout} {
			if t, err = time.Parse(layout, x); err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, false
		}
	default:
		secs, ok := dataset.ToFloat(v)
		if !ok {
			return time.Time{}, false
		}
		t = time.Unix(int64(secs), 0)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// Forecast fits a least-squares linear trend to each category's daily mean
// sentiment and writes the value Periods days after the last observation,
// clipped to [-1, 1], under KeyForecast. Categories with fewer than two
// days forecast 0.
type Forecast struct {
	Inner           Source
	Periods         int
	SentimentColumn string
	log             *zap.Logger
}

// WithForecast returns a Decorator adding Forecast.
func WithForecast(periods int, log *zap.Logger) Decorator {
	return func(inner Source) Source {
		return &Forecast{Inner: inner, Periods: periods, SentimentColumn: dataset.ColSentiment, log: orNop(log)}
	}
}

func (f *Forecast) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := f.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	src := pickSeries(in, f.SentimentColumn)
	forecasts := make(map[string]float64)
	if warnMissing(f.log, "forecast", src.data, src.date, src.category, src.sentiment) {
		ins[KeyForecast] = forecasts
		return ins, nil
	}

	for cat, pts := range dailySeries(src) {
		forecasts[cat] = forecastLinear(pts, f.Periods)
	}
	ins[KeyForecast] = forecasts
	return ins, nil
}

func forecastLinear(pts []DailyPoint, periods int) float64 {
	if len(pts) < 2 {
		return 0
	}
	origin := pts[0].Date
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.Date.Sub(origin).Hours() / 24
		ys[i] = p.Mean
	}
	slope, intercept := ols(xs, ys)
	x := xs[len(xs)-1] + float64(periods)
	return clip(intercept+slope*x, -1, 1)
}

// ols returns the least-squares slope and intercept of y on x.
func ols(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	var sxy, sxx float64
	for i := range xs {
		sxy += (xs[i] - mx) * (ys[i] - my)
		sxx += (xs[i] - mx) * (xs[i] - mx)
	}
	if sxx == 0 {
		return 0, my
	}
	slope = sxy / sxx
	return slope, my - slope*mx
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// MinAnomalyDays is the fewest distinct days a category needs before
// anomaly detection runs on it.
const MinAnomalyDays = 5

// DefaultZThreshold is the default anomaly cut-off.
const DefaultZThreshold = 2.0

// Anomaly flags days whose mean sentiment lies more than Threshold sample
// standard deviations from the category mean. It writes KeyAnomalies as a
// map from category to dates (YYYY-MM-DD). Categories with fewer than
// MinAnomalyDays days or zero variance get an empty list.
type Anomaly struct {
	Inner           Source
	Threshold       float64
	SentimentColumn string
	log             *zap.Logger
}

// WithAnomaly returns a Decorator adding Anomaly.
func WithAnomaly(threshold float64, log *zap.Logger) Decorator {
	if threshold <= 0 {
		threshold = DefaultZThreshold
	}
	return func(inner Source) Source {
		return &Anomaly{Inner: inner, Threshold: threshold, SentimentColumn: dataset.ColSentiment, log: orNop(log)}
	}
}

func (a *Anomaly) ExtractInsights(ctx context.Context, in *Input) (Insight, error) {
	ins, err := a.Inner.ExtractInsights(ctx, in)
	if err != nil {
		return nil, err
	}
	src := pickSeries(in, a.SentimentColumn)
	anomalies := make(map[string][]string)
	if warnMissing(a.log, "anomaly", src.data, src.date, src.category, src.sentiment) {
		ins[KeyAnomalies] = anomalies
		return ins, nil
	}

	for cat, pts := range dailySeries(src) {
		anomalies[cat] = a.detect(cat, pts)
	}
	ins[KeyAnomalies] = anomalies
	return ins, nil
}

func (a *Anomaly) detect(cat string, pts []DailyPoint) []string {
	dates := []string{}
	if len(pts) < MinAnomalyDays {
		a.log.Debug("anomaly detection skipped, too few days",
			zap.String("category", cat), zap.Int("days", len(pts)))
		return dates
	}
	var mean float64
	for _, p := range pts {
		mean += p.Mean
	}
	mean /= float64(len(pts))
	var ss float64
	for _, p := range pts {
		ss += (p.Mean - mean) * (p.Mean - mean)
	}
	sd := math.Sqrt(ss / float64(len(pts)-1))
	if sd == 0 {
		return dates
	}
	for _, p := range pts {
		if math.Abs(p.Mean-mean)/sd > a.Threshold {
			dates = append(dates, p.Date.Format(dateLayout))
		}
	}
	return dates
}
