// Package chunk cleans article text and splits it into overlapping pieces.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
)

const searchRange = 100

type Config struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
	MinSize int `yaml:"min_size"`
}

func DefaultConfig() Config {
	return Config{Size: 1000, Overlap: 200, MinSize: 100}
}

// withDefaults fills zero fields and keeps the overlap below the size so
// splitting always advances.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Size <= 0 {
		c.Size = d.Size
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.Size {
		c.Overlap = c.Size / 5
	}
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	return c
}

// Piece is a span of cleaned text. Start and End are rune offsets.
type Piece struct {
	Text  string
	Start int
	End   int
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x{9f}]`)
	inlineSpace  = regexp.MustCompile(`[^\S\n]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// Clean applies NFKC normalisation, drops control characters, collapses
// whitespace inside lines and keeps at most one blank line between
// paragraphs.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = controlChars.ReplaceAllString(text, "")
	text = inlineSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split cleans text and cuts it into pieces of about cfg.Size runes, each
// overlapping the previous by cfg.Overlap. Cuts prefer a paragraph break,
// then a sentence end, a clause boundary and finally a space. Pieces shorter
// than cfg.MinSize are dropped unless the text fits in a single piece.
func Split(text string, cfg Config) []Piece {
	cfg = cfg.withDefaults()
	r := []rune(Clean(text))
	if len(r) == 0 {
		return nil
	}
	if len(r) <= cfg.Size {
		return []Piece{{Text: string(r), Start: 0, End: len(r)}}
	}

	var pieces []Piece
	start := 0
	for start < len(r) {
		end := start + cfg.Size
		last := end >= len(r)
		if last {
			end = len(r)
		} else {
			end = splitPoint(r, end)
		}

		body := strings.TrimSpace(string(r[start:end]))
		if len([]rune(body)) >= cfg.MinSize {
			pieces = append(pieces, Piece{Text: body, Start: start, End: end})
		}
		if last {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

func splitPoint(r []rune, target int) int {
	if target > len(r) {
		target = len(r)
	}
	lo := max(0, target-searchRange)

	for i := target; i > lo; i-- {
		if i < len(r)-1 && r[i] == '\n' && r[i+1] == '\n' {
			return i + 2
		}
	}
	for i := target; i > lo; i-- {
		if i < len(r) && strings.ContainsRune(".!?", r[i]) && (i+1 >= len(r) || r[i+1] == ' ' || r[i+1] == '\n') {
			return i + 1
		}
	}
	for i := target; i > lo; i-- {
		if i < len(r) && strings.ContainsRune(",;:", r[i]) && (i+1 >= len(r) || r[i+1] == ' ') {
			return i + 1
		}
	}
	for i := target; i > lo; i-- {
		if i < len(r) && r[i] == ' ' {
			return i + 1
		}
	}
	return target
}

// Article splits an article into chunks. The title is prepended as a heading
// and article metadata is copied onto every chunk.
func Article(a store.Article, cfg Config) []store.Chunk {
	body := a.Content
	if strings.TrimSpace(body) == "" {
		body = a.Summary
	}
	pieces := Split("# "+a.Title+"\n\n"+body, cfg)

	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.Chunk{
			ID:             fmt.Sprintf("%s_%03d", a.ID, i),
			ArticleID:      a.ID,
			Index:          i,
			Text:           p.Text,
			ArticleTitle:   a.Title,
			ArticleURL:     a.URL,
			SourceName:     a.SourceName,
			SourceCategory: a.SourceCategory,
			PublishedAt:    a.PublishedAt,
			Keywords:       a.Keywords,
		}
	}
	return chunks
}
