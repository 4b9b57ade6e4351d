package taxonomy

import (
	"reflect"
	"testing"
)

func TestTagCompanies(t *testing.T) {
	got := Tag("OpenAI releases GPT-5 with improved reasoning capabilities")
	want := []string{"OpenAI", "Reasoning"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tag = %v, want %v", got, want)
	}
}

func TestTagPhrase(t *testing.T) {
	got := Tag("AI agents are transforming enterprise workflows")
	want := []string{"AI Agents", "Enterprise AI"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tag = %v, want %v", got, want)
	}
}

func TestTagSingleWordNeedsWholeToken(t *testing.T) {
	// "rl" must not match inside "world", "cot" not inside "scotland".
	got := Tag("A world tour through Scotland")
	if len(got) != 0 {
		t.Errorf("expected no keywords, got %v", got)
	}
}

func TestTagEachKeywordOnce(t *testing.T) {
	got := Tag("Claude, Claude Opus and Anthropic")
	if len(got) != 1 || got[0] != "Anthropic" {
		t.Errorf("expected [Anthropic], got %v", got)
	}
}

func TestTagEmpty(t *testing.T) {
	if got := Tag(""); len(got) != 0 {
		t.Errorf("expected no keywords for empty text, got %v", got)
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ai safety", "AI Safety", false},
		{"  LLMs ", "LLMs", false},
		{"RAG", "RAG", false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := Canonical(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Canonical(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Canonical(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		keywords []string
		want     Category
	}{
		{[]string{"OpenAI"}, CompaniesAndModels},
		{[]string{"RAG", "AI Safety"}, TechnicalConcepts},
		{[]string{"AI Safety", "Robotics"}, Applications},
		{[]string{"Job Market"}, IndustryAndSociety},
		{[]string{"not a keyword"}, Other},
		{nil, Other},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.keywords); got != tt.want {
			t.Errorf("CategoryOf(%v) = %q, want %q", tt.keywords, got, tt.want)
		}
	}
}

func TestCategoriesExcludeOther(t *testing.T) {
	cats := Categories()
	if len(cats) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(cats))
	}
	for _, c := range cats {
		if c == Other {
			t.Error("Other must not be listed")
		}
	}
}

func TestEveryKeywordHasCategory(t *testing.T) {
	total := 0
	for _, c := range Categories() {
		total += len(KeywordsIn(c))
	}
	if total != len(Keywords()) {
		t.Errorf("categorised %d keywords, table has %d", total, len(Keywords()))
	}
}
