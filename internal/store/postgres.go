package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Postgres struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initSchema() error {
	_, err := p.db.Exec(`
	CREATE TABLE IF NOT EXISTS articles (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		url             TEXT UNIQUE NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		summary         TEXT NOT NULL DEFAULT '',
		published_at    TIMESTAMPTZ NOT NULL,
		source_name     TEXT NOT NULL,
		source_category TEXT NOT NULL,
		source_priority TEXT NOT NULL DEFAULT 'medium',
		keywords        JSONB NOT NULL DEFAULT '[]',
		fetched_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS articles_published_idx ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS articles_source_idx ON articles(source_name);
	CREATE INDEX IF NOT EXISTS articles_keywords_idx ON articles USING GIN (keywords);

	CREATE TABLE IF NOT EXISTS chunks (
		id              TEXT PRIMARY KEY,
		article_id      TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		chunk_index     INTEGER NOT NULL,
		text            TEXT NOT NULL,
		article_title   TEXT NOT NULL,
		article_url     TEXT NOT NULL,
		source_name     TEXT NOT NULL,
		source_category TEXT NOT NULL,
		published_at    TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS chunks_published_idx ON chunks(published_at DESC);
	CREATE INDEX IF NOT EXISTS chunks_article_idx ON chunks(article_id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) UpsertArticles(ctx context.Context, articles []Article) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (id, title, url, content, summary, published_at,
			source_name, source_category, source_priority, keywords, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			keywords = EXCLUDED.keywords,
			fetched_at = EXCLUDED.fetched_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range articles {
		kw, err := encodeKeywords(a.Keywords)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, a.ID, a.Title, a.URL, a.Content, a.Summary,
			a.PublishedAt.UTC(), a.SourceName, a.SourceCategory, a.SourcePriority,
			kw, a.FetchedAt.UTC())
		if err != nil {
			return fmt.Errorf("upserting article %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) InsertChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, article_id, chunk_index, text, article_title,
			article_url, source_name, source_category, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			article_title = EXCLUDED.article_title
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx, c.ID, c.ArticleID, c.Index, c.Text, c.ArticleTitle,
			c.ArticleURL, c.SourceName, c.SourceCategory, c.PublishedAt.UTC())
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT url FROM articles WHERE url = ANY($1)`, pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("querying urls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = true
	}
	return out, rows.Err()
}

func (p *Postgres) CountArticles(ctx context.Context, since time.Time, topics []string) (int, error) {
	where, args := articleFilterPG(since, topics)
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles a WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

func (p *Postgres) UnchunkedArticles(ctx context.Context, source string) ([]Article, error) {
	query := `SELECT a.id, a.title, a.url, a.content, a.summary, a.published_at, a.source_name,
		a.source_category, a.source_priority, a.keywords, a.fetched_at
		FROM articles a
		WHERE NOT EXISTS (SELECT 1 FROM chunks c WHERE c.article_id = a.id)`
	var args []any
	if source != "" {
		query += " AND a.source_name = $1"
		args = append(args, source)
	}
	query += " ORDER BY a.published_at DESC, a.id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unchunked articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var (
			a  Article
			kw []byte
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &a.Summary, &a.PublishedAt, &a.SourceName,
			&a.SourceCategory, &a.SourcePriority, &kw, &a.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		if a.Keywords, err = decodeKeywords(kw); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) FetchArticles(ctx context.Context, since time.Time, topics []string) ([]ArticleKeywords, error) {
	where, args := articleFilterPG(since, topics)
	rows, err := p.db.QueryContext(ctx,
		"SELECT a.id, a.keywords, a.published_at FROM articles a WHERE "+where+
			" ORDER BY a.published_at DESC, a.id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var out []ArticleKeywords
	for rows.Next() {
		var (
			a  ArticleKeywords
			kw []byte
		)
		if err := rows.Scan(&a.ID, &kw, &a.PublishedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		if a.Keywords, err = decodeKeywords(kw); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// articleFilterPG matches topics with the jsonb ?| operator.
func articleFilterPG(since time.Time, topics []string) (string, []any) {
	where := "a.published_at >= $1"
	args := []any{since.UTC()}
	if len(topics) > 0 {
		where += " AND a.keywords ?| $2"
		args = append(args, pq.Array(topics))
	}
	return where, args
}

func (p *Postgres) FetchChunks(ctx context.Context, q ChunkQuery) ([]Chunk, error) {
	if q.ArticleIDs != nil && len(q.ArticleIDs) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultChunkLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT c.id, c.article_id, c.chunk_index, c.text, c.article_title, c.article_url,
		c.source_name, c.source_category, c.published_at, a.keywords
		FROM chunks c JOIN articles a ON a.id = c.article_id
		WHERE c.published_at >= $1`)
	args := []any{q.Since.UTC()}
	order := " ORDER BY c.published_at DESC, c.article_id, c.chunk_index"
	if len(q.ArticleIDs) > 0 {
		args = append(args, pq.Array(q.ArticleIDs))
		ids := "$" + strconv.Itoa(len(args))
		sb.WriteString(" AND c.article_id = ANY(" + ids + ")")
		order = " ORDER BY array_position(" + ids + "::text[], c.article_id), c.published_at DESC, c.chunk_index"
	}
	args = append(args, limit)
	sb.WriteString(order + " LIMIT $" + strconv.Itoa(len(args)))

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var (
			c  Chunk
			kw []byte
		)
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.Index, &c.Text, &c.ArticleTitle, &c.ArticleURL,
			&c.SourceName, &c.SourceCategory, &c.PublishedAt, &kw); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if c.Keywords, err = decodeKeywords(kw); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune relies on ON DELETE CASCADE to remove chunks.
func (p *Postgres) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := p.db.ExecContext(ctx, `DELETE FROM articles WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning articles: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Sources: map[string]int{}}
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&st.Articles); err != nil {
		return st, fmt.Errorf("counting articles: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return st, fmt.Errorf("counting chunks: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT source_name, COUNT(*) FROM articles GROUP BY source_name`)
	if err != nil {
		return st, fmt.Errorf("counting sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return st, err
		}
		st.Sources[name] = n
	}
	return st, rows.Err()
}

func (p *Postgres) NeedsRefresh(ctx context.Context, interval time.Duration) bool {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_refresh'`).Scan(&value)
	if err != nil {
		return true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return true
	}
	return time.Since(t) >= interval
}

func (p *Postgres) SetLastRefresh(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('last_refresh', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, time.Now().Format(time.RFC3339))
	return err
}
