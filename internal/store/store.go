// Package store persists embedded chunks and answers similarity queries.
package store

import (
	"context"
	"sort"
)

// Record is one stored chunk: content-addressed ID, the chunk text, and flat
// string metadata.
type Record struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// QueryResult is a record with its similarity to the query (cosine, 0-1 for
// normalized vectors).
type QueryResult struct {
	Record
	Score float64 `json:"score"`
}

// Stats summarizes store contents.
type Stats struct {
	TotalDocuments int64            `json:"total_documents"`
	ByType         map[string]int64 `json:"by_type"`
	BySource       map[string]int64 `json:"by_source"`
}

// VectorStore stores records with embeddings and retrieves them by semantic
// similarity. Upsert is idempotent: a record whose ID and text are unchanged
// is not re-embedded or rewritten.
type VectorStore interface {
	Upsert(ctx context.Context, records []Record) error
	Delete(ctx context.Context, filter map[string]string) (int64, error)
	Query(ctx context.Context, text string, filter map[string]string, k int) ([]QueryResult, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// sortByScore orders results by descending similarity, breaking ties by ID so
// output is stable.
func sortByScore(results []QueryResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// matchesFilter reports whether metadata satisfies every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
