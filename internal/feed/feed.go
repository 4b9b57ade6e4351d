package feed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

const (
	userAgent = "newshub/1.0 (+https://github.com/swhefti/ai-news-intelligence-hub)"

	// Feed content shorter than this is replaced by the item description.
	minContentRunes = 200
	maxSummaryRunes = 500

	// With full content enabled, articles shorter than this are fetched
	// from their page.
	FullContentRunes = 500
	pageTimeout      = 10 * time.Second
)

type Fetcher interface {
	Fetch(ctx context.Context, source config.Source) ([]store.Article, error)
}

// PageFetcher returns the readable text of an article page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

type Options struct {
	MaxArticles int
	MaxAge      time.Duration
	Timeout     time.Duration
	// FullContent fetches the article page when the feed carries less than
	// FullContentRunes of text.
	FullContent bool
	Client      *http.Client
	Now         func() time.Time
}

type RSSFetcher struct {
	parser *gofeed.Parser
	client *http.Client
	opts   Options
}

func NewRSSFetcher(opts Options) *RSSFetcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	client := &http.Client{Timeout: pageTimeout}
	if opts.Client != nil {
		p.Client = opts.Client
		client = opts.Client
	}
	return &RSSFetcher{parser: p, client: client, opts: opts}
}

// FetchPage downloads url and extracts its main text.
func (f *RSSFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}
	return documentText(doc), nil
}

// Expand replaces content with the page text at url when content is shorter
// than FullContentRunes and the page yields more. Fetch failures keep
// content unchanged.
func Expand(ctx context.Context, pages PageFetcher, url, content string) (string, bool, error) {
	if pages == nil || url == "" || len([]rune(content)) >= FullContentRunes {
		return content, false, nil
	}
	text, err := pages.FetchPage(ctx, url)
	if err != nil {
		return content, false, err
	}
	if len([]rune(text)) <= len([]rune(content)) {
		return content, false, nil
	}
	return text, true, nil
}

func (f *RSSFetcher) Fetch(ctx context.Context, source config.Source) ([]store.Article, error) {
	// The timeout covers the feed itself; article pages have their own.
	parseCtx := ctx
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	feed, err := f.parser.ParseURLWithContext(source.URL, parseCtx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source.Name, err)
	}

	items := feed.Items
	if f.opts.MaxArticles > 0 && len(items) > f.opts.MaxArticles {
		items = items[:f.opts.MaxArticles]
	}

	now := f.opts.Now()
	articles := make([]store.Article, 0, len(items))
	for _, item := range items {
		a, ok := f.article(item, source, now)
		if !ok {
			continue
		}
		if f.opts.FullContent {
			content, changed, err := Expand(ctx, f, a.URL, a.Content)
			if err == nil && changed {
				a.Content = content
				if a.Summary == "" {
					a.Summary = truncate(content, maxSummaryRunes)
				}
			}
		}
		if a.Content == "" {
			continue
		}
		a.Keywords = taxonomy.Tag(a.Title + "\n" + a.Content)
		articles = append(articles, a)
	}
	return articles, nil
}

func (f *RSSFetcher) article(item *gofeed.Item, source config.Source, now time.Time) (store.Article, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return store.Article{}, false
	}

	pub := now
	if item.PublishedParsed != nil {
		pub = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		pub = *item.UpdatedParsed
	}
	if f.opts.MaxAge > 0 && pub.Before(now.Add(-f.opts.MaxAge)) {
		return store.Article{}, false
	}

	summary := extractText(item.Description)
	content := extractText(item.Content)
	if len([]rune(content)) < minContentRunes {
		content = summary
	}
	if summary == "" {
		summary = content
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Untitled"
	}

	return store.Article{
		ID:             articleID(link),
		Title:          title,
		URL:            link,
		Content:        content,
		Summary:        truncate(summary, maxSummaryRunes),
		PublishedAt:    pub,
		SourceName:     source.Name,
		SourceCategory: source.Category,
		SourcePriority: source.Priority,
		FetchedAt:      now,
	}, true
}

// articleID is the first 16 hex digits of the URL's sha256.
func articleID(link string) string {
	h := sha256.Sum256([]byte(link))
	return fmt.Sprintf("%x", h[:8])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

const boilerplate = "script, style, nav, header, footer, aside, form, iframe, noscript"

var contentSelectors = []string{"article", "main", "div.content", "div.post", "div.entry", "body"}

// extractText turns an HTML fragment into a single line of text, dropping
// page chrome and preferring the main content element when there is one.
func extractText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return documentText(doc)
}

func documentText(doc *goquery.Document) string {
	doc.Find(boilerplate).Remove()

	root := doc.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			root = s
			break
		}
	}

	var parts []string
	collectText(root, &parts)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		collectText(c, parts)
	})
}

// SourceError records a feed that could not be fetched.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

type FetchResult struct {
	Articles []store.Article
	Errors   []error
}

// FetchAll fetches every source with at most concurrency requests in flight.
// A failing source is recorded in Errors and does not stop the others.
// Articles are returned newest first.
func FetchAll(ctx context.Context, fetcher Fetcher, sources []config.Source, concurrency int) FetchResult {
	var (
		mu     sync.Mutex
		result FetchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, src := range sources {
		src := src
		g.Go(func() error {
			articles, err := fetcher.Fetch(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, &SourceError{Source: src.Name, Err: err})
				return nil
			}
			result.Articles = append(result.Articles, articles...)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(result.Articles, func(i, j int) bool {
		a, b := result.Articles[i], result.Articles[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].(*SourceError).Source < result.Errors[j].(*SourceError).Source
	})
	return result
}
