package server

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/ComplaintRadar/internal/insight"
)

// reportData is the part of a stored analysis result the report page shows.
type reportData struct {
	Input      int `json:"input_posts"`
	Complaints int `json:"complaints"`
	Insights   struct {
		CategoryCounts map[string]int              `json:"category_counts"`
		Summaries      map[string]insight.Summary  `json:"category_summaries"`
		Forecast       map[string]float64          `json:"sentiment_forecast"`
		Anomalies      map[string][]string         `json:"sentiment_anomalies"`
		Aspects        map[string][]insight.Aspect `json:"aspect_sentiments"`
		Polls          map[string][]insight.Poll   `json:"polls"`
	} `json:"insights"`
}

// reportMarkdown lays out a result as markdown, categories by complaint
// count descending.
func reportMarkdown(r reportData) string {
	var b strings.Builder
	b.WriteString("# Complaint report\n\n")
	fmt.Fprintf(&b, "%d of %d posts were confirmed complaints.\n\n", r.Complaints, r.Input)

	ins := r.Insights
	cats := make([]string, 0, len(ins.CategoryCounts))
	for c := range ins.CategoryCounts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		ci, cj := ins.CategoryCounts[cats[i]], ins.CategoryCounts[cats[j]]
		if ci != cj {
			return ci > cj
		}
		return cats[i] < cats[j]
	})

	for _, c := range cats {
		fmt.Fprintf(&b, "## %s (%d)\n\n", c, ins.CategoryCounts[c])
		if s, ok := ins.Summaries[c]; ok {
			if s.Summary != "" {
				b.WriteString(s.Summary + "\n\n")
			}
			writeList(&b, "Concerns", s.Concerns)
			writeList(&b, "Suggestions", s.Suggestions)
		}
		if f, ok := ins.Forecast[c]; ok {
			fmt.Fprintf(&b, "Forecast sentiment: **%+.2f**\n\n", f)
		}
		if days := ins.Anomalies[c]; len(days) > 0 {
			fmt.Fprintf(&b, "Anomalous days: %s\n\n", strings.Join(days, ", "))
		}
		if aspects := ins.Aspects[c]; len(aspects) > 0 {
			items := make([]string, len(aspects))
			for i, a := range aspects {
				items[i] = fmt.Sprintf("%s (%s)", a.Aspect, a.Sentiment)
			}
			writeList(&b, "Aspects", items)
		}
		for _, p := range ins.Polls[c] {
			fmt.Fprintf(&b, "> **Poll:** %s  \n> %s\n\n", p.Question, strings.Join(p.Options, " · "))
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s**\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
