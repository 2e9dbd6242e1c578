package gateway

import (
	"fmt"
	"strings"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
)

const selectionSystem = `You are a tech content strategist. You pick the single story with the best potential for an insightful long-form social media post. Respond only with JSON.`

const researchSystem = `You are a research analyst. Provide concrete, current facts with numbers: funding amounts, user counts, market sizes, growth rates, named competitors. No speculation.`

const synthesisSystem = `You write sharp, data-driven long-form posts for a tech audience. You always respond with a single JSON object and nothing else.`

func selectionPrompt(candidates []source.Story, recentTitles []string) string {
	var sb strings.Builder
	sb.WriteString("Pick the best story for a long-form tech post. Prefer stories with business impact, concrete numbers, and broad interest.\n\n")

	if len(recentTitles) > 0 {
		sb.WriteString("Avoid topics too close to these recently covered titles:\n")
		for _, t := range recentTitles {
			sb.WriteString("- ")
			sb.WriteString(t)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Candidates:\n")
	for i, s := range candidates {
		fmt.Fprintf(&sb, "%d. %s", i, s.Title)
		if s.Score > 0 {
			fmt.Fprintf(&sb, " (score %d)", s.Score)
		}
		if s.Summary != "" {
			fmt.Fprintf(&sb, "\n   %s", s.Summary)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond with JSON: {\"selected_index\": <number>, \"reason\": \"<one sentence>\"}")
	return sb.String()
}

func researchPrompt(s source.Story) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research this story for a data-driven post:\n\nTitle: %s\n", s.Title)
	if s.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", s.URL)
	}
	if s.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", s.Summary)
	}
	sb.WriteString(`
Find:
1. Key numbers (funding, revenue, users, market size, growth rates)
2. Named competitors and how they compare
3. Why this matters now (timing, market context)
4. At least one quantitative comparison suitable for a chart

Keep it factual and current.`)
	return sb.String()
}

func synthesisPrompt(s source.Story, facts, style string, b Bounds) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a long-form post about this story.\n\nTitle: %s\n", s.Title)
	if s.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", s.URL)
	}
	if facts != "" {
		fmt.Fprintf(&sb, "\nResearch findings:\n%s\n", facts)
	} else {
		sb.WriteString("\nNo research findings are available. Write from the story itself and clearly grounded general knowledge only; do not invent numbers.\n")
	}
	if style != "" {
		fmt.Fprintf(&sb, "\nVoice and style: %s\n", style)
	}

	fmt.Fprintf(&sb, `
Requirements:
- Between %d and %d characters.
- Open with a hook, develop one clear argument, close with a takeaway.
- Weave in the concrete numbers from the research.
- No hashtag spam; at most two hashtags.

Also produce a chart describing the most interesting numbers. Chart type must be one of "bar", "line", or "comparison", with 2 to 10 data points.

Respond with a single JSON object:
{"post": "<the post text>", "chart": {"type": "bar", "title": "<chart title>", "data_points": [{"label": "<label>", "value": <number>}]}}`,
		b.MinChars, b.MaxChars)
	return sb.String()
}

func refinePrompt(text string, b Bounds) string {
	return fmt.Sprintf(`Rewrite the post below so its length is between %d and %d characters. Preserve the argument, the numbers, and the voice. Respond with the rewritten post text only, no JSON, no commentary.

%s`, b.MinChars, b.MaxChars, text)
}
