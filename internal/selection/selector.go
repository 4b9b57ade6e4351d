// Package selection picks a bounded, diverse set of chunks to use as language
// model context for a time window and optional topic filter.
//
// The pipeline is fetch → rank → limit sources → weight recency. Without
// topics, each recency bucket's slots are filled with a category balance. Every stage after the fetch is a pure
// function of its input, so a fixed repository snapshot and request always
// produce the same ordered result.
package selection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

// NoResultsMessage is reported with an empty result.
const NoResultsMessage = "No articles found for the selected time range and topics."

// Stage names a step of the selection pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageFetching
	StageRanking
	StageLimitingDiversity
	StageWeightingRecency
	StageBalancing
	StageDone
	StageEmpty
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageFetching:
		return "fetching"
	case StageRanking:
		return "ranking"
	case StageLimitingDiversity:
		return "limiting_diversity"
	case StageWeightingRecency:
		return "weighting_recency"
	case StageBalancing:
		return "balancing"
	case StageDone:
		return "done"
	case StageEmpty:
		return "empty"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type Result struct {
	Chunks []store.Chunk
	// MatchedArticles counts every article that passed the time and topic
	// filter, including those that contributed no chunk.
	MatchedArticles int
	// Placeholder is set to NoResultsMessage when Chunks is empty.
	Placeholder string

	WindowDays int
	Topics     []string
	Mode       Mode
	Budget     int
	Candidates int
	Stage      Stage
}

// Empty reports whether the result carries no chunks.
func (r *Result) Empty() bool {
	return len(r.Chunks) == 0
}

type Selector struct {
	repo   store.Reader
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Selector)

// WithClock sets the time source used for the window start and recency buckets.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(repo store.Reader, opts ...Option) *Selector {
	s := &Selector{repo: repo, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select runs the pipeline for req. Repository failures are returned wrapped
// in ErrRepositoryUnavailable and are not retried. A window outside the
// allow-list is clamped to DefaultWindowDays rather than rejected.
func (s *Selector) Select(ctx context.Context, req Request) (*Result, error) {
	norm, clamped, err := req.normalize()
	if err != nil {
		return nil, err
	}
	if clamped {
		s.logger.Warn("window outside allow-list, using default",
			"requested_days", req.WindowDays, "window_days", norm.WindowDays)
	}

	now := s.now()
	since := now.Add(-time.Duration(norm.WindowDays) * day)
	budget := Budget(norm.WindowDays)
	res := &Result{
		WindowDays: norm.WindowDays,
		Topics:     norm.Topics,
		Mode:       norm.Mode,
		Budget:     budget,
	}
	log := s.logger.With("window_days", norm.WindowDays, "topics", norm.Topics)

	s.enter(log, res, StageFetching, 0)
	chunks, matched, err := s.fetch(ctx, since, norm.Topics, overFetch(budget))
	if err != nil {
		log.Error("candidate fetch failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}
	res.MatchedArticles = matched
	chunks = dedupe(chunks)
	res.Candidates = len(chunks)
	if matched == 0 || len(chunks) == 0 {
		res.Placeholder = NoResultsMessage
		s.enter(log, res, StageEmpty, 0)
		return res, nil
	}

	s.enter(log, res, StageRanking, len(chunks))
	chunks = Rank(chunks, norm.Topics)

	s.enter(log, res, StageLimitingDiversity, len(chunks))
	chunks = LimitSources(chunks, PerSourceCap(norm.WindowDays))

	s.enter(log, res, StageWeightingRecency, len(chunks))
	if len(norm.Topics) > 0 {
		chunks = WeightRecency(chunks, norm.WindowDays, budget, now)
	} else {
		s.enter(log, res, StageBalancing, len(chunks))
		chunks = BalanceByRecency(chunks, norm.WindowDays, budget, now, taxonomy.Categories())
	}

	res.Chunks = chunks
	s.enter(log, res, StageDone, len(chunks))
	return res, nil
}

func (s *Selector) enter(log *slog.Logger, res *Result, stage Stage, count int) {
	res.Stage = stage
	log.Debug("selection stage", "stage", stage.String(), "count", count)
}

// fetch returns the over-fetched candidate chunks and the number of matching
// articles. With topics, articles are pre-ranked by how many topics they
// carry and chunks are restricted to them; without topics the article count
// and the chunk rows are independent and fetched concurrently.
func (s *Selector) fetch(ctx context.Context, since time.Time, topics []string, limit int) ([]store.Chunk, int, error) {
	if len(topics) > 0 {
		articles, err := s.repo.FetchArticles(ctx, since, topics)
		if err != nil {
			return nil, 0, fmt.Errorf("fetching articles: %w", err)
		}
		if len(articles) == 0 {
			return nil, 0, nil
		}
		ids := rankArticleIDs(articles, topics)
		chunks, err := s.repo.FetchChunks(ctx, store.ChunkQuery{Since: since, ArticleIDs: ids, Limit: limit})
		if err != nil {
			return nil, 0, fmt.Errorf("fetching chunks: %w", err)
		}
		return chunks, len(articles), nil
	}

	var (
		count  int
		chunks []store.Chunk
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.CountArticles(gctx, since, nil)
		if err != nil {
			return fmt.Errorf("counting articles: %w", err)
		}
		count = n
		return nil
	})
	g.Go(func() error {
		c, err := s.repo.FetchChunks(gctx, store.ChunkQuery{Since: since, Limit: limit})
		if err != nil {
			return fmt.Errorf("fetching chunks: %w", err)
		}
		chunks = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return chunks, count, nil
}

// rankArticleIDs orders article ids by the number of requested topics each
// carries, most first; ties keep repository order.
func rankArticleIDs(articles []store.ArticleKeywords, topics []string) []string {
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	ranked := append([]store.ArticleKeywords(nil), articles...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return matches(ranked[i].Keywords, set) > matches(ranked[j].Keywords, set)
	})
	ids := make([]string, len(ranked))
	for i, a := range ranked {
		ids[i] = a.ID
	}
	return ids
}

func matches(keywords []string, set map[string]bool) int {
	n := 0
	for _, kw := range keywords {
		if set[kw] {
			n++
		}
	}
	return n
}
