package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/swhefti/ai-news-intelligence-hub/internal/ai"
	"github.com/swhefti/ai-news-intelligence-hub/internal/selection"
)

const (
	conciseTokens  = 512
	detailedTokens = 1536

	maxTrending      = 5
	maxActiveSources = 3
)

// Source is one article cited by a briefing.
type Source struct {
	Title       string
	URL         string
	Name        string
	PublishedAt time.Time
}

type Briefing struct {
	Greeting         string
	Text             string
	Sources          []Source
	ActiveSources    string
	MatchedArticles  int
	TrendingKeywords []string
	WindowDays       int
	Topics           []string
	Mode             selection.Mode
	// Empty is set when nothing matched; Text then holds the placeholder.
	Empty bool
}

// Selector is the part of selection.Selector a Generator needs.
type Selector interface {
	Select(ctx context.Context, req selection.Request) (*selection.Result, error)
}

type Generator struct {
	selector Selector
	model    ai.Generator
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Generator)

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a Generator. model may be nil, in which case Brief only
// succeeds for requests that match nothing.
func New(sel Selector, model ai.Generator, opts ...Option) *Generator {
	g := &Generator{selector: sel, model: model, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Brief selects context for req and asks the model to summarise it. An
// empty selection returns the placeholder without calling the model.
func (g *Generator) Brief(ctx context.Context, req selection.Request) (*Briefing, error) {
	res, err := g.selector.Select(ctx, req)
	if err != nil {
		return nil, err
	}

	b := &Briefing{
		Greeting:        greeting(g.now()),
		MatchedArticles: res.MatchedArticles,
		WindowDays:      res.WindowDays,
		Topics:          res.Topics,
		Mode:            res.Mode,
	}
	if res.Empty() {
		b.Empty = true
		b.Text = res.Placeholder
		if b.Text == "" {
			b.Text = selection.NoResultsMessage
		}
		return b, nil
	}

	b.Sources = sources(res)
	b.ActiveSources = activeSources(res)
	b.TrendingKeywords = trending(res)

	if g.model == nil {
		return nil, fmt.Errorf("generating briefing: %w", ai.ErrNotConfigured)
	}

	prompt, maxTokens := BuildPrompt(res)
	g.logger.Debug("generating briefing",
		"chunks", len(res.Chunks), "prompt_bytes", len(prompt), "max_tokens", maxTokens)
	text, err := g.model.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating briefing: %w", err)
	}
	b.Text = text
	return b, nil
}

// BuildPrompt formats the selected chunks as numbered context blocks under a
// mode-specific instruction and returns the prompt with its token limit.
func BuildPrompt(res *selection.Result) (string, int) {
	var sb strings.Builder

	maxTokens := conciseTokens
	if res.Mode == selection.ModeDetailed {
		maxTokens = detailedTokens
		sb.WriteString("You are an analyst writing a detailed AI news briefing.\n")
		sb.WriteString("Group the developments below into short sections with a heading each, ")
		sb.WriteString("2-4 sentences per section, and finish with a \"Worth watching\" section.\n")
	} else {
		sb.WriteString("You are an analyst writing a concise AI news overview.\n")
		sb.WriteString("Summarise the most significant developments below in 4-6 sentences, one paragraph.\n")
	}
	sb.WriteString("Only use the context provided. Cite articles by their [n] number.\n\n")

	fmt.Fprintf(&sb, "Time range: last %d days\n", res.WindowDays)
	if len(res.Topics) > 0 {
		fmt.Fprintf(&sb, "Topics: %s\n", strings.Join(res.Topics, ", "))
	} else {
		sb.WriteString("Topics: all\n")
	}
	fmt.Fprintf(&sb, "Articles matched: %d\n\nCONTEXT:\n", res.MatchedArticles)

	// Chunks of one article share its number, which matches its position in
	// the briefing's Sources.
	refs := map[string]int{}
	for _, c := range res.Chunks {
		n, ok := refs[c.ArticleID]
		if !ok {
			n = len(refs) + 1
			refs[c.ArticleID] = n
		}
		fmt.Fprintf(&sb, "\n[%d] Source: %s\nTitle: %s\nURL: %s\nPublished: %s\nContent: %s\n",
			n, c.SourceName, c.ArticleTitle, c.ArticleURL,
			c.PublishedAt.UTC().Format("2006-01-02"), strings.TrimSpace(c.Text))
	}
	return sb.String(), maxTokens
}

// sources lists each article once, in the order its first chunk was selected.
func sources(res *selection.Result) []Source {
	seen := map[string]bool{}
	var out []Source
	for _, c := range res.Chunks {
		if seen[c.ArticleID] {
			continue
		}
		seen[c.ArticleID] = true
		out = append(out, Source{
			Title:       c.ArticleTitle,
			URL:         c.ArticleURL,
			Name:        c.SourceName,
			PublishedAt: c.PublishedAt,
		})
	}
	return out
}

func greeting(now time.Time) string {
	hour := now.Hour()
	switch {
	case hour < 12:
		return "Good morning"
	case hour < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

type count struct {
	name string
	n    int
}

// topCounts orders counts by n descending, then name, and keeps at most limit.
func topCounts(counts map[string]int, limit int) []count {
	out := make([]count, 0, len(counts))
	for name, n := range counts {
		out = append(out, count{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].name < out[j].name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// activeSources renders the sources contributing most chunks, e.g.
// "OpenAI Blog (3), The Verge AI (2)".
func activeSources(res *selection.Result) string {
	counts := map[string]int{}
	for _, c := range res.Chunks {
		counts[c.SourceName]++
	}
	top := topCounts(counts, maxActiveSources)
	parts := make([]string, len(top))
	for i, c := range top {
		parts[i] = fmt.Sprintf("%s (%d)", c.name, c.n)
	}
	return strings.Join(parts, ", ")
}

// trending counts each keyword once per selected article.
func trending(res *selection.Result) []string {
	seen := map[string]bool{}
	counts := map[string]int{}
	for _, c := range res.Chunks {
		if seen[c.ArticleID] {
			continue
		}
		seen[c.ArticleID] = true
		for _, kw := range c.Keywords {
			counts[kw]++
		}
	}
	top := topCounts(counts, maxTrending)
	out := make([]string, len(top))
	for i, c := range top {
		out[i] = c.name
	}
	return out
}
