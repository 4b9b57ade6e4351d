package store

import "time"

type Article struct {
	ID             string
	Title          string
	URL            string
	Content        string
	Summary        string
	PublishedAt    time.Time
	SourceName     string
	SourceCategory string
	SourcePriority string
	Keywords       []string
	FetchedAt      time.Time
}

// Chunk is a fragment of an article's text. Title, URL, source and
// publication time are copied from the owning article; Keywords is filled
// from the article on read and is not stored per chunk.
type Chunk struct {
	ID             string
	ArticleID      string
	Index          int
	Text           string
	ArticleTitle   string
	ArticleURL     string
	SourceName     string
	SourceCategory string
	PublishedAt    time.Time
	Keywords       []string
}

// ArticleKeywords is the projection used to pre-rank articles by topic match.
type ArticleKeywords struct {
	ID          string
	Keywords    []string
	PublishedAt time.Time
}

type ChunkQuery struct {
	Since time.Time
	// ArticleIDs restricts the result when non-nil. An empty, non-nil slice
	// matches nothing. Chunks come back in ArticleIDs order, so a ranked list
	// decides which articles survive Limit; without it they are newest first.
	ArticleIDs []string
	Limit      int
}

type Stats struct {
	Articles int
	Chunks   int
	Sources  map[string]int
}
