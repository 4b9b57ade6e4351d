// Package ingest pulls configured feeds into the store: fetch, drop articles
// already stored, chunk, persist.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/swhefti/ai-news-intelligence-hub/internal/chunk"
	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
	"github.com/swhefti/ai-news-intelligence-hub/internal/feed"
	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

const defaultConcurrency = 4

type Stats struct {
	RunID   string
	Fetched int
	New     int
	Chunks  int
	Errors  []error
}

// ReprocessStats summarises a Reprocess run.
type ReprocessStats struct {
	RunID      string
	Candidates int
	Expanded   int
	Retagged   int
	Chunks     int
	Errors     []error
}

type Pipeline struct {
	repo        store.Writer
	fetcher     feed.Fetcher
	pages       feed.PageFetcher
	sources     []config.Source
	chunking    chunk.Config
	concurrency int
	logger      *slog.Logger
}

type Option func(*Pipeline)

func WithChunking(c chunk.Config) Option {
	return func(p *Pipeline) { p.chunking = c }
}

func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPages sets where Reprocess fetches the full text of short articles.
func WithPages(pf feed.PageFetcher) Option {
	return func(p *Pipeline) { p.pages = pf }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(repo store.Writer, fetcher feed.Fetcher, sources []config.Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:        repo,
		fetcher:     fetcher,
		sources:     sources,
		chunking:    chunk.DefaultConfig(),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run performs one ingestion pass. Feed failures are reported in Stats and
// only fail the run when every source failed; store failures always do.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	st := Stats{RunID: uuid.NewString()}
	log := p.logger.With("run_id", st.RunID)
	log.Info("ingestion started", "sources", len(p.sources))

	res := feed.FetchAll(ctx, p.fetcher, p.sources, p.concurrency)
	st.Errors = res.Errors
	for _, err := range res.Errors {
		log.Warn("feed fetch failed", "err", err)
	}
	if len(p.sources) > 0 && len(res.Errors) == len(p.sources) {
		return st, fmt.Errorf("all %d sources failed", len(p.sources))
	}

	articles := uniqueByURL(res.Articles)
	st.Fetched = len(articles)

	urls := make([]string, len(articles))
	for i, a := range articles {
		urls[i] = a.URL
	}
	existing, err := p.repo.ExistingURLs(ctx, urls)
	if err != nil {
		return st, fmt.Errorf("checking existing articles: %w", err)
	}

	var (
		fresh  []store.Article
		chunks []store.Chunk
	)
	for _, a := range articles {
		if existing[a.URL] {
			continue
		}
		cs := chunk.Article(a, p.chunking)
		log.Debug("chunked article", "article_id", a.ID, "chunks", len(cs))
		fresh = append(fresh, a)
		chunks = append(chunks, cs...)
	}
	st.New = len(fresh)
	st.Chunks = len(chunks)

	if len(fresh) > 0 {
		if err := p.repo.UpsertArticles(ctx, fresh); err != nil {
			return st, fmt.Errorf("storing articles: %w", err)
		}
		if err := p.repo.InsertChunks(ctx, chunks); err != nil {
			return st, fmt.Errorf("storing chunks: %w", err)
		}
	}
	if err := p.repo.SetLastRefresh(ctx); err != nil {
		return st, fmt.Errorf("recording refresh: %w", err)
	}

	log.Info("ingestion finished", "fetched", st.Fetched, "new", st.New, "chunks", st.Chunks, "errors", len(st.Errors))
	return st, nil
}

// Reprocess chunks stored articles that have none. Short bodies are
// replaced by the page text when a page fetcher is set, and articles
// without keywords are tagged again. One article failing does not stop the
// others; its error is reported in the stats.
func (p *Pipeline) Reprocess(ctx context.Context, source string) (ReprocessStats, error) {
	st := ReprocessStats{RunID: uuid.NewString()}
	log := p.logger.With("run_id", st.RunID)

	articles, err := p.repo.UnchunkedArticles(ctx, source)
	if err != nil {
		return st, fmt.Errorf("finding unchunked articles: %w", err)
	}
	st.Candidates = len(articles)
	log.Info("reprocessing started", "articles", len(articles), "source", source)

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		changed := false

		content, expanded, err := feed.Expand(ctx, p.pages, a.URL, a.Content)
		if err != nil {
			log.Warn("page fetch failed", "article_id", a.ID, "url", a.URL, "err", err)
		}
		if expanded {
			a.Content = content
			st.Expanded++
			changed = true
		}
		if len(a.Keywords) == 0 {
			if kw := taxonomy.Tag(a.Title + "\n" + a.Content); len(kw) > 0 {
				a.Keywords = kw
				st.Retagged++
				changed = true
			}
		}

		cs := chunk.Article(a, p.chunking)
		if len(cs) == 0 {
			st.Errors = append(st.Errors, fmt.Errorf("article %s: no chunks after reprocessing", a.ID))
			continue
		}
		if changed {
			if err := p.repo.UpsertArticles(ctx, []store.Article{a}); err != nil {
				st.Errors = append(st.Errors, fmt.Errorf("updating article %s: %w", a.ID, err))
				continue
			}
		}
		if err := p.repo.InsertChunks(ctx, cs); err != nil {
			st.Errors = append(st.Errors, fmt.Errorf("storing chunks of %s: %w", a.ID, err))
			continue
		}
		log.Debug("reprocessed article", "article_id", a.ID, "chunks", len(cs), "expanded", expanded)
		st.Chunks += len(cs)
	}

	log.Info("reprocessing finished", "articles", st.Candidates, "expanded", st.Expanded,
		"retagged", st.Retagged, "chunks", st.Chunks, "errors", len(st.Errors))
	return st, nil
}

func uniqueByURL(articles []store.Article) []store.Article {
	seen := make(map[string]bool, len(articles))
	out := make([]store.Article, 0, len(articles))
	for _, a := range articles {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		out = append(out, a)
	}
	return out
}
