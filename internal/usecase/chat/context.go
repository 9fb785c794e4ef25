package chat

import (
	"fmt"
	"strings"

	"github.com/jxucoder/openregulations.ai/internal/domain"
)

const (
	maxContextThemes  = 5
	maxContextResults = 5
	excerptLimit      = 300
)

// AssembleContext merges the docket's analysis summary with the top-ranked
// retrieved comments into one bounded grounding document. Output is fully
// deterministic for identical inputs; both parts are optional and an empty
// string means there is nothing to ground on.
func AssembleContext(summary *domain.AnalysisSummary, results []domain.RetrievedComment) string {
	var b strings.Builder

	if summary != nil {
		b.WriteString("## Docket analysis\n\n")
		if summary.ExecutiveSummary != "" {
			b.WriteString(summary.ExecutiveSummary)
			b.WriteString("\n\n")
		}

		total := summary.Sentiment.Support + summary.Sentiment.Oppose + summary.Sentiment.Neutral
		if total > 0 {
			fmt.Fprintf(&b, "Sentiment across %d classified comments: %d%% support, %d%% oppose, %d%% neutral.\n\n",
				total,
				pct(summary.Sentiment.Support, total),
				pct(summary.Sentiment.Oppose, total),
				pct(summary.Sentiment.Neutral, total),
			)
		}

		if len(summary.Themes) > 0 {
			b.WriteString("Key themes:\n")
			themes := summary.Themes
			if len(themes) > maxContextThemes {
				themes = themes[:maxContextThemes]
			}
			for _, t := range themes {
				fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(results) > 0 {
		b.WriteString("## Relevant comments\n\n")
		if len(results) > maxContextResults {
			results = results[:maxContextResults]
		}
		for i, r := range results {
			author := r.Author
			if author == "" {
				author = "Anonymous"
			}
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, author, truncate(r.Text, excerptLimit))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func pct(part, total int) int {
	return int(float64(part)/float64(total)*100 + 0.5)
}

// truncate shortens s to at most limit runes, marking the cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
