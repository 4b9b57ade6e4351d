package store

import (
	"context"
	"os"
	"testing"
	"time"
)

// Runs only against a disposable database named by NEWSHUB_TEST_POSTGRES_DSN.
func testPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("NEWSHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NEWSHUB_TEST_POSTGRES_DSN not set")
	}
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	ctx := context.Background()
	if _, err := db.db.ExecContext(ctx, "TRUNCATE chunks, articles, meta"); err != nil {
		t.Fatalf("truncating: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresTopicQueries(t *testing.T) {
	db := testPostgres(t)
	ctx := context.Background()
	now := time.Now()

	articles := sampleArticles(now)
	if err := db.UpsertArticles(ctx, articles); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for _, a := range articles {
		if err := db.InsertChunks(ctx, chunksFor(a, 2)); err != nil {
			t.Fatalf("insert chunks: %v", err)
		}
	}

	n, err := db.CountArticles(ctx, now.Add(-72*time.Hour), []string{"AI Safety", "OpenAI"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 topic matches, got %d", n)
	}

	chunks, err := db.FetchChunks(ctx, ChunkQuery{Since: now.Add(-72 * time.Hour), ArticleIDs: []string{"aaa"}, Limit: 10})
	if err != nil {
		t.Fatalf("fetch chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Keywords) != 2 {
		t.Errorf("expected article keywords on chunk, got %v", chunks[0].Keywords)
	}

	ranked, err := db.FetchChunks(ctx, ChunkQuery{Since: now.Add(-72 * time.Hour), ArticleIDs: []string{"ccc", "aaa"}, Limit: 3})
	if err != nil {
		t.Fatalf("fetch ranked chunks: %v", err)
	}
	if len(ranked) != 3 || ranked[0].ArticleID != "ccc" || ranked[2].ArticleID != "aaa" {
		t.Errorf("chunks not in ranked article order: %+v", ranked)
	}

	deleted, err := db.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}
	st, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Chunks != 4 {
		t.Errorf("expected cascade to leave 4 chunks, got %d", st.Chunks)
	}
}
