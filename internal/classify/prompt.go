package classify

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
)

// maxItemChars bounds each post's text inside a request.
const maxItemChars = 2000

const systemPrompt = "You are an analyst who reads social media posts about public services " +
	"and classifies them for a government feedback unit. Follow the output format exactly."

// item is one text to classify. context carries the prior round's
// assessment during verification.
type item struct {
	text    string
	context string
}

type round int

const (
	roundCategorize round = iota
	roundVerify
)

// buildMessages assembles one request: a system instruction, the templated
// user instruction, then one message per item in order.
func buildMessages(items []item, categories []string, schema Schema, r round) []llm.Message {
	msgs := make([]llm.Message, 0, len(items)+2)
	msgs = append(msgs, llm.System(systemPrompt))
	msgs = append(msgs, llm.User(instruction(len(items), categories, schema, r)))
	for i, it := range items {
		text := truncate(it.text, maxItemChars)
		if it.context != "" {
			text = fmt.Sprintf("%s\n[Previous assessment: %s]", text, it.context)
		}
		msgs = append(msgs, llm.User(fmt.Sprintf("Post %d:\n%s", i+1, text)))
	}
	return msgs
}

func instruction(n int, categories []string, schema Schema, r round) string {
	var b strings.Builder
	if r == roundVerify {
		fmt.Fprintf(&b, "The following %d posts were previously flagged as complaints. "+
			"Re-examine each one carefully; the previous assessment is shown for reference only "+
			"and may be wrong.\n\n", n)
	} else {
		fmt.Fprintf(&b, "Classify each of the following %d posts.\n\n", n)
	}

	b.WriteString("For every post decide:\n")
	b.WriteString("- Intent: \"Yes\" if the post is a complaint or grievance about a public service, " +
		"infrastructure or policy that an agency could act on, otherwise \"No\".\n")
	fmt.Fprintf(&b, "- Domain: exactly one of: %s.\n", strings.Join(categories, ", "))
	format := `"<Intent>","<Domain>"`
	if schema == SchemaRich {
		b.WriteString("- Confidence: how sure you are of the intent, from 0 to 1.\n")
		b.WriteString("- Sentiment: from -1 (very negative) to 1 (very positive).\n")
		b.WriteString("- Importance: how urgently an agency should look at it, from 0 to 1.\n")
		format = `"<Intent>","<Domain>","<Confidence>","<Sentiment>","<Importance>"`
	}

	fmt.Fprintf(&b, "\nRespond with exactly %d lines, one per post, in the same order as the posts. "+
		"Each line must have the form:\n%s\n", n, format)
	b.WriteString("Do not add numbering, headers, blank lines or explanations.")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
