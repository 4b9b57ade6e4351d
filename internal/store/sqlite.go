package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as UTC text in a fixed layout so range filters can
// compare them lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05"

type SQLite struct {
	db *sql.DB
}

func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// A single connection keeps the foreign_keys pragma in effect and
	// serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.db.Exec(`
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS articles (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			url             TEXT NOT NULL UNIQUE,
			content         TEXT NOT NULL DEFAULT '',
			summary         TEXT NOT NULL DEFAULT '',
			published_at    TEXT NOT NULL,
			source_name     TEXT NOT NULL,
			source_category TEXT NOT NULL,
			source_priority TEXT NOT NULL DEFAULT 'medium',
			keywords        TEXT NOT NULL DEFAULT '[]',
			fetched_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);
		CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_name);

		CREATE TABLE IF NOT EXISTS chunks (
			id              TEXT PRIMARY KEY,
			article_id      TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			chunk_index     INTEGER NOT NULL,
			text            TEXT NOT NULL,
			article_title   TEXT NOT NULL,
			article_url     TEXT NOT NULL,
			source_name     TEXT NOT NULL,
			source_category TEXT NOT NULL,
			published_at    TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_published ON chunks(published_at DESC);
		CREATE INDEX IF NOT EXISTS idx_chunks_article ON chunks(article_id);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) UpsertArticles(ctx context.Context, articles []Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (id, title, url, content, summary, published_at,
			source_name, source_category, source_priority, keywords, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			summary = excluded.summary,
			keywords = excluded.keywords,
			fetched_at = excluded.fetched_at
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
			sqliteTime(a.PublishedAt), a.SourceName, a.SourceCategory, a.SourcePriority,
			kw, sqliteTime(a.FetchedAt))
		if err != nil {
			return fmt.Errorf("upserting article %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) InsertChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, article_id, chunk_index, text, article_title,
			article_url, source_name, source_category, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			article_title = excluded.article_title
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := sqliteTime(time.Now())
	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx, c.ID, c.ArticleID, c.Index, c.Text, c.ArticleTitle,
			c.ArticleURL, c.SourceName, c.SourceCategory, sqliteTime(c.PublishedAt), now)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(urls) == 0 {
		return out, nil
	}
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT url FROM articles WHERE url IN ("+placeholders(len(urls))+")", args...) //nolint:gosec
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

func (s *SQLite) UnchunkedArticles(ctx context.Context, source string) ([]Article, error) {
	query := `SELECT a.id, a.title, a.url, a.content, a.summary, a.published_at, a.source_name,
		a.source_category, a.source_priority, a.keywords, a.fetched_at
		FROM articles a
		WHERE NOT EXISTS (SELECT 1 FROM chunks c WHERE c.article_id = a.id)`
	var args []any
	if source != "" {
		query += " AND a.source_name = ?"
		args = append(args, source)
	}
	query += " ORDER BY a.published_at DESC, a.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unchunked articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var (
			a                Article
			pub, fetched, kw string
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &a.Summary, &pub, &a.SourceName,
			&a.SourceCategory, &a.SourcePriority, &kw, &fetched); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		if a.PublishedAt, err = parseSQLiteTime(pub); err != nil {
			return nil, err
		}
		if a.FetchedAt, err = parseSQLiteTime(fetched); err != nil {
			return nil, err
		}
		if a.Keywords, err = decodeKeywords([]byte(kw)); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) CountArticles(ctx context.Context, since time.Time, topics []string) (int, error) {
	where, args := s.articleFilter(since, topics)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles a WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

func (s *SQLite) FetchArticles(ctx context.Context, since time.Time, topics []string) ([]ArticleKeywords, error) {
	where, args := s.articleFilter(since, topics)
	rows, err := s.db.QueryContext(ctx,
		"SELECT a.id, a.keywords, a.published_at FROM articles a WHERE "+where+
			" ORDER BY a.published_at DESC, a.id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var out []ArticleKeywords
	for rows.Next() {
		var (
			a       ArticleKeywords
			kw, pub string
		)
		if err := rows.Scan(&a.ID, &kw, &pub); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		if a.Keywords, err = decodeKeywords([]byte(kw)); err != nil {
			return nil, err
		}
		if a.PublishedAt, err = parseSQLiteTime(pub); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) articleFilter(since time.Time, topics []string) (string, []any) {
	where := "a.published_at >= ?"
	args := []any{sqliteTime(since)}
	if len(topics) > 0 {
		where += " AND EXISTS (SELECT 1 FROM json_each(a.keywords) k WHERE k.value IN (" + placeholders(len(topics)) + "))"
		for _, t := range topics {
			args = append(args, t)
		}
	}
	return where, args
}

func (s *SQLite) FetchChunks(ctx context.Context, q ChunkQuery) ([]Chunk, error) {
	if q.ArticleIDs != nil && len(q.ArticleIDs) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultChunkLimit
	}

	query := `SELECT c.id, c.article_id, c.chunk_index, c.text, c.article_title, c.article_url,
		c.source_name, c.source_category, c.published_at, a.keywords
		FROM chunks c JOIN articles a ON a.id = c.article_id
		WHERE c.published_at >= ?`
	args := []any{sqliteTime(q.Since)}
	order := " ORDER BY c.published_at DESC, c.article_id, c.chunk_index LIMIT ?"
	if len(q.ArticleIDs) > 0 {
		query += " AND c.article_id IN (" + placeholders(len(q.ArticleIDs)) + ")"
		for _, id := range q.ArticleIDs {
			args = append(args, id)
		}
		ranked, err := encodeKeywords(q.ArticleIDs)
		if err != nil {
			return nil, err
		}
		order = " ORDER BY (SELECT MIN(r.key) FROM json_each(?) r WHERE r.value = c.article_id)," +
			" c.published_at DESC, c.chunk_index LIMIT ?"
		args = append(args, ranked)
	}
	query += order
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var (
			c       Chunk
			pub, kw string
		)
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.Index, &c.Text, &c.ArticleTitle, &c.ArticleURL,
			&c.SourceName, &c.SourceCategory, &pub, &kw); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if c.PublishedAt, err = parseSQLiteTime(pub); err != nil {
			return nil, err
		}
		if c.Keywords, err = decodeKeywords([]byte(kw)); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes articles published before now-olderThan together with their chunks.
func (s *SQLite) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := sqliteTime(time.Now().Add(-olderThan))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE article_id IN (SELECT id FROM articles WHERE published_at < ?)", cutoff); err != nil {
		return 0, fmt.Errorf("pruning chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE published_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Sources: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&st.Articles); err != nil {
		return st, fmt.Errorf("counting articles: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&st.Chunks); err != nil {
		return st, fmt.Errorf("counting chunks: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT source_name, COUNT(*) FROM articles GROUP BY source_name")
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

func (s *SQLite) NeedsRefresh(ctx context.Context, interval time.Duration) bool {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'last_refresh'").Scan(&value)
	if err != nil {
		return true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return true
	}
	return time.Since(t) >= interval
}

func (s *SQLite) SetLastRefresh(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('last_refresh', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, time.Now().Format(time.RFC3339))
	return err
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
