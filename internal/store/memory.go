package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclaw/kioku/internal/embedding"
)

// MemoryStore is an in-memory VectorStore with the same semantics as the
// SQLite store. Used in tests and available as a throwaway backend.
type MemoryStore struct {
	embedder embedding.Embedder
	records  map[string]memoryRecord
	mu       sync.RWMutex
}

type memoryRecord struct {
	text     string
	metadata map[string]string
	vec      []float32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(embedder embedding.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		records:  make(map[string]memoryRecord),
	}
}

// Upsert stores records, skipping re-embedding when ID and text are unchanged.
func (m *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if existing, ok := m.records[rec.ID]; ok && existing.text == rec.Text {
			continue
		}
		vec, err := m.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return fmt.Errorf("embed record %s: %w", rec.ID, err)
		}
		metadata := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			metadata[k] = v
		}
		m.records[rec.ID] = memoryRecord{text: rec.Text, metadata: metadata, vec: vec}
	}
	return nil
}

// Delete removes records matching the filter.
func (m *MemoryStore) Delete(ctx context.Context, filter map[string]string) (int64, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("delete requires a non-empty filter")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, rec := range m.records {
		if matchesFilter(rec.metadata, filter) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Query returns the top-k records by cosine similarity.
func (m *MemoryStore) Query(ctx context.Context, text string, filter map[string]string, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []QueryResult
	for id, rec := range m.records {
		if !matchesFilter(rec.metadata, filter) {
			continue
		}
		results = append(results, QueryResult{
			Record: Record{ID: id, Text: rec.text, Metadata: rec.metadata},
			Score:  innerProduct(queryVec, rec.vec),
		})
	}
	sortByScore(results)
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored records.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// Stats returns totals grouped by type and source metadata.
func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &Stats{
		ByType:   make(map[string]int64),
		BySource: make(map[string]int64),
	}
	for _, rec := range m.records {
		stats.TotalDocuments++
		if t := rec.metadata["type"]; t != "" {
			stats.ByType[t]++
		}
		if src := rec.metadata["source"]; src != "" {
			stats.BySource[src]++
		}
	}
	return stats, nil
}

// Close closes the embedder.
func (m *MemoryStore) Close() error {
	return m.embedder.Close()
}
