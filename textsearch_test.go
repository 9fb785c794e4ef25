package openregulations

import (
	"math"
	"testing"
)

func testComments() []Comment {
	return []Comment{
		{ID: "c1", Text: "This rule threatens small businesses across the state."},
		{ID: "c2", Text: "I fully support stronger safety standards for trucks."},
		{ID: "c3", Text: "Safety is important but the rule needs work on enforcement."},
	}
}

func TestTextSearch_ScoringAndOrder(t *testing.T) {
	results := TextSearch("safety rule enforcement", testComments())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// c3 matches all three tokens, c1 one, c2 one.
	if results[0].ID != "c3" {
		t.Errorf("top result = %q, want c3", results[0].ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-12 {
		t.Errorf("c3 score = %f, want 1.0", results[0].Score)
	}
	// c1 and c2 tie at 1/3; input order breaks the tie.
	if results[1].ID != "c1" || results[2].ID != "c2" {
		t.Errorf("tie order = %q, %q; want c1, c2", results[1].ID, results[2].ID)
	}
}

func TestTextSearch_ZeroMatchExcluded(t *testing.T) {
	results := TextSearch("pipelines", testComments())
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestTextSearch_ShortTokensDiscarded(t *testing.T) {
	// "is", "a", "on" are all <= 2 chars; only "the" survives.
	results := TextSearch("is a on the", testComments())
	for _, r := range results {
		if r.Score != 1.0 {
			t.Errorf("result %s score = %f, want 1.0 (single token)", r.ID, r.Score)
		}
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 comments containing \"the\", got %d", len(results))
	}
}

func TestTextSearch_CaseInsensitive(t *testing.T) {
	results := TextSearch("SAFETY", testComments())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestTextSearch_Deterministic(t *testing.T) {
	first := TextSearch("safety rule", testComments())
	for range 10 {
		again := TextSearch("safety rule", testComments())
		if len(again) != len(first) {
			t.Fatalf("length changed between runs")
		}
		for i := range again {
			if again[i].ID != first[i].ID || again[i].Score != first[i].Score {
				t.Fatalf("ranking changed between runs at %d", i)
			}
		}
	}
}

func TestTextSearch_EmptyQuery(t *testing.T) {
	if results := TextSearch("", testComments()); results != nil {
		t.Errorf("expected nil for empty query, got %v", results)
	}
}
