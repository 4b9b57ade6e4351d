package selection

import (
	"sort"
	"time"

	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

const dedupPrefixRunes = 50

// dedupKey identifies a chunk across stages. The chunk id is used when
// present; otherwise the article id plus the first 50 runes of text.
func dedupKey(c store.Chunk) string {
	if c.ID != "" {
		return "id:" + c.ID
	}
	r := []rune(c.Text)
	if len(r) > dedupPrefixRunes {
		r = r[:dedupPrefixRunes]
	}
	return "text:" + c.ArticleID + "\x00" + string(r)
}

// dedupe drops repeated chunks, keeping the first occurrence.
func dedupe(chunks []store.Chunk) []store.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		k := dedupKey(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// richness counts the chunk's keywords that are in topics, or all of its
// keywords when topics is empty.
func richness(c store.Chunk, topics map[string]bool) int {
	if len(topics) == 0 {
		return len(c.Keywords)
	}
	n := 0
	for _, kw := range c.Keywords {
		if topics[kw] {
			n++
		}
	}
	return n
}

// Rank orders chunks by richness, then by publication time, newest first.
// Equal chunks keep their input order. The input slice is not modified.
func Rank(chunks []store.Chunk, topics []string) []store.Chunk {
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	type scored struct {
		chunk store.Chunk
		score int
	}
	items := make([]scored, len(chunks))
	for i, c := range chunks {
		items[i] = scored{c, richness(c, set)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].chunk.PublishedAt.After(items[j].chunk.PublishedAt)
	})

	out := make([]store.Chunk, len(items))
	for i, it := range items {
		out[i] = it.chunk
	}
	return out
}

// LimitSources keeps at most perSource chunks from each source, walking the
// list in order. Dropped slots are not given back to the source.
func LimitSources(chunks []store.Chunk, perSource int) []store.Chunk {
	counts := map[string]int{}
	out := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if counts[c.SourceName] >= perSource {
			continue
		}
		counts[c.SourceName]++
		out = append(out, c)
	}
	return out
}

// recencyShares returns the percentage of the target drawn from each bucket,
// or nil when the window is short enough to skip bucketing.
func recencyShares(windowDays int) []int {
	switch {
	case windowDays <= 3:
		return nil
	case windowDays <= 7:
		return []int{60, 40}
	default:
		return []int{50, 30, 20}
	}
}

const day = 24 * time.Hour

// bucketIndex places a chunk age into one of n buckets: ≤3 days, ≤7 days,
// older. With two buckets anything past three days lands in the second.
func bucketIndex(age time.Duration, n int) int {
	switch {
	case age <= 3*day:
		return 0
	case age <= 7*day || n == 2:
		return 1
	default:
		return 2
	}
}

// WeightRecency draws up to target chunks, taking from each time bucket its
// share of target and backfilling any shortfall from the other buckets in
// share order. Output is grouped by bucket, each group in input order.
func WeightRecency(chunks []store.Chunk, windowDays, target int, now time.Time) []store.Chunk {
	picked, _ := drawRecency(chunks, windowDays, target, now)
	var out []store.Chunk
	for _, p := range picked {
		out = append(out, p...)
	}
	return out
}

// BalanceByRecency selects the same number of chunks from each time bucket
// as WeightRecency, but fills every bucket's slots with BalanceCategories
// over all of that bucket's candidates. Bucket counts therefore match
// WeightRecency exactly while categories spread within each bucket.
func BalanceByRecency(chunks []store.Chunk, windowDays, target int, now time.Time, categories []taxonomy.Category) []store.Chunk {
	picked, buckets := drawRecency(dedupe(chunks), windowDays, target, now)
	var out []store.Chunk
	for b := range buckets {
		out = append(out, BalanceCategories(buckets[b], categories, len(picked[b]))...)
	}
	return out
}

// drawRecency splits chunks into time buckets and returns the chunks drawn
// from each bucket alongside the buckets themselves. A window of three days
// or less is a single bucket.
func drawRecency(chunks []store.Chunk, windowDays, target int, now time.Time) (picked, buckets [][]store.Chunk) {
	if target <= 0 {
		return nil, nil
	}
	shares := recencyShares(windowDays)
	if shares == nil {
		return [][]store.Chunk{takeUnique(chunks, target)}, [][]store.Chunk{chunks}
	}

	buckets = make([][]store.Chunk, len(shares))
	for _, c := range chunks {
		b := bucketIndex(now.Sub(c.PublishedAt), len(shares))
		buckets[b] = append(buckets[b], c)
	}

	seen := map[string]bool{}
	picked = make([][]store.Chunk, len(shares))
	pos := make([]int, len(shares))
	remaining := target

	draw := func(b, limit int) {
		taken := 0
		for pos[b] < len(buckets[b]) && taken < limit && remaining > 0 {
			c := buckets[b][pos[b]]
			pos[b]++
			k := dedupKey(c)
			if seen[k] {
				continue
			}
			seen[k] = true
			picked[b] = append(picked[b], c)
			taken++
			remaining--
		}
	}

	for b, pct := range shares {
		draw(b, target*pct/100)
	}
	for b := range shares {
		if remaining == 0 {
			break
		}
		draw(b, remaining)
	}
	return picked, buckets
}

// BalanceCategories picks up to budget chunks so that each category gets an
// even share of the budget, filling any leftover slots from the remaining
// chunks. The chosen chunks keep their input order.
func BalanceCategories(chunks []store.Chunk, categories []taxonomy.Category, budget int) []store.Chunk {
	if budget <= 0 || len(chunks) == 0 {
		return nil
	}
	chosen := make([]bool, len(chunks))
	seen := map[string]bool{}
	count := 0

	take := func(i int) bool {
		k := dedupKey(chunks[i])
		if chosen[i] || seen[k] {
			return false
		}
		chosen[i] = true
		seen[k] = true
		count++
		return true
	}

	if len(categories) > 0 {
		per := budget / len(categories)
		for _, cat := range categories {
			taken := 0
			for i := 0; i < len(chunks) && taken < per && count < budget; i++ {
				if taxonomy.InCategory(chunks[i].Keywords, cat) && take(i) {
					taken++
				}
			}
		}
	}
	for i := 0; i < len(chunks) && count < budget; i++ {
		take(i)
	}

	out := make([]store.Chunk, 0, count)
	for i, c := range chunks {
		if chosen[i] {
			out = append(out, c)
		}
	}
	return out
}

func takeUnique(chunks []store.Chunk, n int) []store.Chunk {
	seen := map[string]bool{}
	out := make([]store.Chunk, 0, min(n, len(chunks)))
	for _, c := range chunks {
		if len(out) == n {
			break
		}
		k := dedupKey(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}
