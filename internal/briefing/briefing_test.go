package briefing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/swhefti/ai-news-intelligence-hub/internal/ai"
	"github.com/swhefti/ai-news-intelligence-hub/internal/selection"
	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeSelector struct {
	res *selection.Result
	err error
	got selection.Request
}

func (f *fakeSelector) Select(_ context.Context, req selection.Request) (*selection.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeModel struct {
	text      string
	err       error
	calls     int
	prompt    string
	maxTokens int
}

func (f *fakeModel) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	f.prompt = prompt
	f.maxTokens = maxTokens
	return f.text, f.err
}

func chunk(id, article, source string, keywords ...string) store.Chunk {
	return store.Chunk{
		ID:           id,
		ArticleID:    article,
		Text:         "text of " + id,
		ArticleTitle: "Title " + article,
		ArticleURL:   "https://example.com/" + article,
		SourceName:   source,
		PublishedAt:  testNow.Add(-24 * time.Hour),
		Keywords:     keywords,
	}
}

func sampleResult(mode selection.Mode) *selection.Result {
	return &selection.Result{
		Chunks: []store.Chunk{
			chunk("a_000", "a", "OpenAI Blog", "OpenAI", "LLMs"),
			chunk("a_001", "a", "OpenAI Blog", "OpenAI", "LLMs"),
			chunk("b_000", "b", "The Verge AI", "LLMs", "Regulation"),
			chunk("c_000", "c", "MIT Tech Review", "Robotics"),
		},
		MatchedArticles: 7,
		WindowDays:      7,
		Mode:            mode,
		Budget:          30,
		Stage:           selection.StageDone,
	}
}

func TestGreeting(t *testing.T) {
	tests := []struct {
		hour     int
		expected string
	}{
		{8, "Good morning"},
		{14, "Good afternoon"},
		{20, "Good evening"},
		{0, "Good morning"},
		{11, "Good morning"},
		{12, "Good afternoon"},
		{17, "Good evening"},
	}

	for _, tt := range tests {
		now := time.Date(2026, 1, 1, tt.hour, 0, 0, 0, time.Local)
		got := greeting(now)
		if got != tt.expected {
			t.Errorf("hour %d: expected %q, got %q", tt.hour, tt.expected, got)
		}
	}
}

func TestBuildPromptConcise(t *testing.T) {
	prompt, maxTokens := BuildPrompt(sampleResult(selection.ModeConcise))
	if maxTokens != conciseTokens {
		t.Errorf("max tokens = %d, want %d", maxTokens, conciseTokens)
	}
	for _, want := range []string{
		"4-6 sentences",
		"Time range: last 7 days",
		"Topics: all",
		"Articles matched: 7",
		"[1] Source: OpenAI Blog\nTitle: Title a\nURL: https://example.com/a\nPublished: 2026-02-28\nContent: text of a_000",
		"[1] Source: OpenAI Blog\nTitle: Title a\nURL: https://example.com/a\nPublished: 2026-02-28\nContent: text of a_001",
		"[3] Source: MIT Tech Review",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "[4]") {
		t.Error("chunks of one article should share a reference number")
	}
}

func TestBuildPromptDetailed(t *testing.T) {
	res := sampleResult(selection.ModeDetailed)
	res.Topics = []string{"OpenAI", "LLMs"}
	prompt, maxTokens := BuildPrompt(res)
	if maxTokens != detailedTokens {
		t.Errorf("max tokens = %d, want %d", maxTokens, detailedTokens)
	}
	if !strings.Contains(prompt, "Worth watching") {
		t.Error("detailed prompt should ask for sections")
	}
	if !strings.Contains(prompt, "Topics: OpenAI, LLMs") {
		t.Error("prompt should list topics")
	}
}

func TestBrief(t *testing.T) {
	sel := &fakeSelector{res: sampleResult(selection.ModeConcise)}
	model := &fakeModel{text: "AI moved fast this week [1]."}
	g := New(sel, model, WithClock(func() time.Time { return testNow }))

	req := selection.Request{WindowDays: 7}
	b, err := g.Brief(context.Background(), req)
	if err != nil {
		t.Fatalf("Brief: %v", err)
	}
	if sel.got.WindowDays != 7 {
		t.Errorf("selector got %+v", sel.got)
	}
	if model.calls != 1 || model.maxTokens != conciseTokens {
		t.Errorf("model calls = %d, max tokens = %d", model.calls, model.maxTokens)
	}
	if b.Text != model.text || b.Empty {
		t.Errorf("briefing = %+v", b)
	}
	if b.Greeting != "Good morning" {
		t.Errorf("greeting = %q", b.Greeting)
	}
	if b.MatchedArticles != 7 {
		t.Errorf("matched = %d", b.MatchedArticles)
	}
	if len(b.Sources) != 3 || b.Sources[0].URL != "https://example.com/a" || b.Sources[2].Name != "MIT Tech Review" {
		t.Errorf("sources = %+v", b.Sources)
	}
	if b.ActiveSources != "OpenAI Blog (2), MIT Tech Review (1), The Verge AI (1)" {
		t.Errorf("active sources = %q", b.ActiveSources)
	}
}

func TestBriefEmptySkipsModel(t *testing.T) {
	sel := &fakeSelector{res: &selection.Result{
		Placeholder: selection.NoResultsMessage,
		WindowDays:  3,
		Topics:      []string{"quantum"},
		Stage:       selection.StageEmpty,
	}}
	model := &fakeModel{text: "should not be used"}
	b, err := New(sel, model).Brief(context.Background(), selection.Request{WindowDays: 3, Topics: []string{"quantum"}})
	if err != nil {
		t.Fatalf("Brief: %v", err)
	}
	if model.calls != 0 {
		t.Errorf("model called %d times", model.calls)
	}
	if !b.Empty || b.Text != selection.NoResultsMessage || len(b.Sources) != 0 {
		t.Errorf("briefing = %+v", b)
	}
}

func TestBriefWithoutModel(t *testing.T) {
	sel := &fakeSelector{res: sampleResult(selection.ModeConcise)}
	_, err := New(sel, nil).Brief(context.Background(), selection.Request{})
	if !errors.Is(err, ai.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestBriefPropagatesErrors(t *testing.T) {
	sel := &fakeSelector{err: selection.ErrRepositoryUnavailable}
	if _, err := New(sel, &fakeModel{}).Brief(context.Background(), selection.Request{}); !errors.Is(err, selection.ErrRepositoryUnavailable) {
		t.Errorf("selector err = %v", err)
	}

	sel = &fakeSelector{res: sampleResult(selection.ModeConcise)}
	model := &fakeModel{err: ai.ErrEmptyResponse}
	if _, err := New(sel, model).Brief(context.Background(), selection.Request{}); !errors.Is(err, ai.ErrEmptyResponse) {
		t.Errorf("model err = %v", err)
	}
}

func TestTrendingCountsArticlesOnce(t *testing.T) {
	res := sampleResult(selection.ModeConcise)
	res.Chunks = append(res.Chunks,
		chunk("d_000", "d", "Wired", "Regulation", "AI Safety"),
		chunk("e_000", "e", "Wired", "Healthcare", "AI Safety", "OpenAI"),
	)
	got := trending(res)
	// a is counted once despite two chunks: LLMs 2, OpenAI 2, Regulation 2,
	// AI Safety 2, then Healthcare and Robotics tie at 1.
	want := []string{"AI Safety", "LLMs", "OpenAI", "Regulation", "Healthcare"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("trending = %v, want %v", got, want)
	}
}
