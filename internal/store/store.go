// Package store persists articles and their chunks and answers the range and
// keyword queries the selection engine needs. SQLite is the local default;
// Postgres backs hosted deployments. Both satisfy Repository.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Reader is the query contract consumed by the selection engine.
type Reader interface {
	CountArticles(ctx context.Context, since time.Time, topics []string) (int, error)
	FetchArticles(ctx context.Context, since time.Time, topics []string) ([]ArticleKeywords, error)
	FetchChunks(ctx context.Context, q ChunkQuery) ([]Chunk, error)
}

// Writer is used by ingestion and maintenance commands.
type Writer interface {
	UpsertArticles(ctx context.Context, articles []Article) error
	InsertChunks(ctx context.Context, chunks []Chunk) error
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
	// UnchunkedArticles returns stored articles that have no chunks, newest
	// first. A non-empty source restricts the result to that source name.
	UnchunkedArticles(ctx context.Context, source string) ([]Article, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	NeedsRefresh(ctx context.Context, interval time.Duration) bool
	SetLastRefresh(ctx context.Context) error
}

type Repository interface {
	Reader
	Writer
	Close() error
}

// Open returns the repository for driver ("sqlite" or "postgres").
func Open(driver, dsn string) (Repository, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q (valid: sqlite, postgres)", driver)
	}
}

const defaultChunkLimit = 500

func encodeKeywords(kw []string) (string, error) {
	if kw == nil {
		kw = []string{}
	}
	b, err := json.Marshal(kw)
	if err != nil {
		return "", fmt.Errorf("encoding keywords: %w", err)
	}
	return string(b), nil
}

func decodeKeywords(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var kw []string
	if err := json.Unmarshal(raw, &kw); err != nil {
		return nil, fmt.Errorf("decoding keywords: %w", err)
	}
	return kw, nil
}
