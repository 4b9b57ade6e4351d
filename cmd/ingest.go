package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
	"github.com/swhefti/ai-news-intelligence-hub/internal/feed"
	"github.com/swhefti/ai-news-intelligence-hub/internal/ingest"
	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
)

var (
	flagSources     []string
	flagCategories  []string
	flagPriorities  []string
	flagForce       bool
	flagFullContent bool
	flagReprocess   bool
	flagDryRun      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch feeds and store new articles",
	Long: `Fetch every enabled feed, chunk articles that are not stored yet and save them.

Runs are skipped while the store is younger than refresh_interval unless --force
is given or the sources are narrowed with --source, --category or --priority.
Articles older than the retention period are pruned afterwards.

With --reprocess no feeds are fetched: stored articles without chunks are
expanded from their pages when short, tagged when they have no keywords and
chunked again.`,
	Example: `  newshub ingest --category ai_company --priority high
  newshub ingest --full-content --force
  newshub ingest --reprocess --source "TechCrunch AI" --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		fetcher := feed.NewRSSFetcher(feed.Options{
			MaxArticles: cfg.Ingestion.MaxArticlesPerFeed,
			MaxAge:      cfg.Ingestion.MaxAgeDuration(),
			Timeout:     cfg.Ingestion.FetchTimeoutDuration(),
			FullContent: flagFullContent || cfg.Ingestion.FullContent,
		})

		if flagReprocess {
			return runReprocess(cmd, repo, fetcher)
		}

		sources, err := pickSources(cfg.EnabledSources(), flagSources)
		if err != nil {
			return err
		}
		sources, err = config.FilterSources(sources, flagCategories, flagPriorities)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return fmt.Errorf("no enabled source matches the given filters")
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		narrowed := len(flagSources) > 0 || len(flagCategories) > 0 || len(flagPriorities) > 0
		if !flagForce && !narrowed && !repo.NeedsRefresh(ctx, cfg.RefreshDuration()) {
			fmt.Fprintf(out, "Store refreshed within the last %s; use --force to fetch anyway.\n",
				formatDuration(cfg.RefreshDuration()))
			return nil
		}

		pipeline := ingest.New(repo, fetcher, sources,
			ingest.WithChunking(cfg.Chunking),
			ingest.WithLogger(logger),
		)

		fmt.Fprintf(out, "Fetching %d feed(s)...\n", len(sources))
		st, err := pipeline.Run(ctx)
		for _, e := range st.Errors {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("  [warn] %v", e)))
		}
		if err != nil {
			return fmt.Errorf("ingesting: %w", err)
		}
		fmt.Fprintf(out, "Fetched %d article(s), stored %d new with %d chunk(s).\n", st.Fetched, st.New, st.Chunks)

		pruned, err := repo.Prune(ctx, cfg.RetentionDuration())
		if err != nil {
			logger.Warn("auto-prune failed", "err", err)
		} else if pruned > 0 {
			fmt.Fprintf(out, "Pruned %d article(s) older than %s.\n", pruned, formatDuration(cfg.RetentionDuration()))
		}
		return nil
	},
}

func runReprocess(cmd *cobra.Command, repo store.Repository, pages *feed.RSSFetcher) error {
	if len(flagSources) > 1 {
		return fmt.Errorf("--reprocess takes at most one --source")
	}
	source := ""
	if len(flagSources) == 1 {
		picked, err := pickSources(cfg.Sources, flagSources)
		if err != nil {
			return err
		}
		source = picked[0].Name
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if flagDryRun {
		articles, err := repo.UnchunkedArticles(ctx, source)
		if err != nil {
			return fmt.Errorf("finding unchunked articles: %w", err)
		}
		renderUnchunked(out, articles)
		return nil
	}

	pipeline := ingest.New(repo, nil, nil,
		ingest.WithChunking(cfg.Chunking),
		ingest.WithPages(pages),
		ingest.WithLogger(logger),
	)
	st, err := pipeline.Reprocess(ctx, source)
	for _, e := range st.Errors {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("  [warn] %v", e)))
	}
	if err != nil {
		return fmt.Errorf("reprocessing: %w", err)
	}
	fmt.Fprintf(out, "Reprocessed %d article(s): %d expanded from their page, %d tagged, %d chunk(s) stored.\n",
		st.Candidates, st.Expanded, st.Retagged, st.Chunks)
	return nil
}

// renderUnchunked lists unchunked articles per source, largest first.
func renderUnchunked(w io.Writer, articles []store.Article) {
	if len(articles) == 0 {
		fmt.Fprintln(w, "Every stored article has chunks.")
		return
	}
	fmt.Fprintf(w, "%d article(s) without chunks:\n", len(articles))
	counts := map[string]int{}
	for _, a := range articles {
		counts[a.SourceName]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(w, "  %-28s %d\n", name, counts[name])
	}
}

func init() {
	ingestCmd.Flags().StringSliceVar(&flagSources, "source", nil, "only fetch the named source (repeatable)")
	ingestCmd.Flags().StringSliceVar(&flagCategories, "category", nil, "only fetch sources in this category: ai_company, tech_news, research, community (repeatable)")
	ingestCmd.Flags().StringSliceVar(&flagPriorities, "priority", nil, "only fetch sources with this priority: high, medium, low (repeatable)")
	ingestCmd.Flags().BoolVar(&flagForce, "force", false, "fetch even if the store was refreshed recently")
	ingestCmd.Flags().BoolVar(&flagFullContent, "full-content", false, "fetch the article page when the feed only has a teaser")
	ingestCmd.Flags().BoolVar(&flagReprocess, "reprocess", false, "chunk stored articles that have no chunks instead of fetching feeds")
	ingestCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "with --reprocess, list the articles without changing them")
}

// pickSources returns the sources named in names, matched case-insensitively,
// or all of sources when names is empty.
func pickSources(sources []config.Source, names []string) ([]config.Source, error) {
	if len(names) == 0 {
		return sources, nil
	}
	byName := make(map[string]config.Source, len(sources))
	for _, s := range sources {
		byName[strings.ToLower(s.Name)] = s
	}
	var out []config.Source
	for _, n := range names {
		s, ok := byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown or disabled source %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}
