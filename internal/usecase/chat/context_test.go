package chat

import (
	"strings"
	"testing"

	"github.com/jxucoder/openregulations.ai/internal/domain"
)

func testSummary() *domain.AnalysisSummary {
	return &domain.AnalysisSummary{
		DocketID:         "EPA-2024-0001",
		ExecutiveSummary: "Commenters broadly support tighter limits.",
		Sentiment:        domain.SentimentSplit{Support: 60, Oppose: 30, Neutral: 10},
		Themes: []domain.Theme{
			{ID: "health", Name: "Public health", Description: "Respiratory effects of emissions"},
			{ID: "cost", Name: "Compliance cost", Description: "Burden on small operators"},
		},
		TotalComments: 100,
	}
}

func testResults() []domain.RetrievedComment {
	return []domain.RetrievedComment{
		{ID: "c1", Text: "We support the rule.", Author: "Jane Doe", Similarity: 0.91},
		{ID: "c2", Text: "Costs are prohibitive.", Author: "", Similarity: 0.85},
	}
}

func TestAssembleContext_Full(t *testing.T) {
	got := AssembleContext(testSummary(), testResults())

	for _, want := range []string{
		"## Docket analysis",
		"Commenters broadly support tighter limits.",
		"60% support, 30% oppose, 10% neutral",
		"- Public health: Respiratory effects of emissions",
		"- Compliance cost: Burden on small operators",
		"## Relevant comments",
		"1. Jane Doe: We support the rule.",
		"2. Anonymous: Costs are prohibitive.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q\n%s", want, got)
		}
	}
}

func TestAssembleContext_Deterministic(t *testing.T) {
	first := AssembleContext(testSummary(), testResults())
	for i := 0; i < 10; i++ {
		if got := AssembleContext(testSummary(), testResults()); got != first {
			t.Fatal("assembly differs between identical calls")
		}
	}
}

func TestAssembleContext_NoSummary(t *testing.T) {
	got := AssembleContext(nil, testResults())

	if strings.Contains(got, "## Docket analysis") {
		t.Error("analysis section present without a summary")
	}
	if !strings.Contains(got, "## Relevant comments") {
		t.Error("comments section missing")
	}
}

func TestAssembleContext_NoResults(t *testing.T) {
	got := AssembleContext(testSummary(), nil)

	if strings.Contains(got, "## Relevant comments") {
		t.Error("comments section present without results")
	}
}

func TestAssembleContext_Empty(t *testing.T) {
	if got := AssembleContext(nil, nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestAssembleContext_CapsThemesAndResults(t *testing.T) {
	summary := testSummary()
	summary.Themes = nil
	for i := 0; i < 8; i++ {
		summary.Themes = append(summary.Themes, domain.Theme{Name: "Theme", Description: "d"})
	}
	var results []domain.RetrievedComment
	for i := 0; i < 8; i++ {
		results = append(results, domain.RetrievedComment{ID: "c", Text: "text", Author: "a"})
	}

	got := AssembleContext(summary, results)

	if n := strings.Count(got, "- Theme:"); n != maxContextThemes {
		t.Errorf("themes = %d, want %d", n, maxContextThemes)
	}
	if strings.Contains(got, "6. ") {
		t.Error("more than five excerpts emitted")
	}
	if !strings.Contains(got, "5. ") {
		t.Error("fifth excerpt missing")
	}
}

func TestAssembleContext_TruncatesExcerpts(t *testing.T) {
	long := strings.Repeat("x", 1000)
	got := AssembleContext(nil, []domain.RetrievedComment{{ID: "c1", Text: long, Author: "a"}})

	if strings.Contains(got, strings.Repeat("x", excerptLimit+1)) {
		t.Error("excerpt not truncated")
	}
	if !strings.Contains(got, "...") {
		t.Error("truncation marker missing")
	}
}

func TestSystemPrompt(t *testing.T) {
	if got := systemPrompt(""); got != roleInstructions {
		t.Error("empty context should yield bare role instructions")
	}

	got := systemPrompt("CONTEXT")
	if !strings.HasPrefix(got, roleInstructions) {
		t.Error("role instructions must lead the prompt")
	}
	if !strings.Contains(got, "# Docket context\n\nCONTEXT") {
		t.Error("context block missing")
	}
}
