package store

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/openclaw/kioku/internal/embedding"
)

// countingEmbedder wraps an embedder and counts Embed calls, so tests can
// verify that unchanged records are not re-embedded.
type countingEmbedder struct {
	embedding.Embedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func newTestStore(t *testing.T) (*SQLiteStore, *countingEmbedder) {
	t.Helper()
	emb := &countingEmbedder{Embedder: embedding.NewHashEmbedder(64)}
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "rag.db"), emb)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, emb
}

func sampleRecords() []Record {
	return []Record{
		{ID: "chunk:aaa", Text: "how to configure the gateway", Metadata: map[string]string{"type": "session", "source": "sessions/s1.jsonl"}},
		{ID: "chunk:bbb", Text: "notes about garden watering", Metadata: map[string]string{"type": "workspace", "source": "notes/garden.md"}},
		{ID: "chunk:ccc", Text: "skill for sending messages", Metadata: map[string]string{"type": "skill", "source": "skill:messaging"}},
	}
}

func TestUpsertAndCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 records, got %d", count)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	s, emb := newTestStore(t)
	ctx := context.Background()

	records := sampleRecords()
	if err := s.Upsert(ctx, records); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	firstCalls := emb.calls.Load()

	if err := s.Upsert(ctx, records); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if emb.calls.Load() != firstCalls {
		t.Errorf("unchanged records were re-embedded: %d calls before, %d after", firstCalls, emb.calls.Load())
	}
	count, _ := s.Count(ctx)
	if count != 3 {
		t.Errorf("expected 3 records after re-upsert, got %d", count)
	}
}

func TestUpsertUpdatesChangedText(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	changed := []Record{{ID: "chunk:aaa", Text: "completely new text", Metadata: map[string]string{"type": "session", "source": "sessions/s1.jsonl"}}}
	if err := s.Upsert(ctx, changed); err != nil {
		t.Fatalf("update Upsert failed: %v", err)
	}

	results, err := s.Query(ctx, "completely new text", nil, 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) == 0 || results[0].ID != "chunk:aaa" {
		t.Fatalf("expected updated record as top result, got %+v", results)
	}
	if results[0].Text != "completely new text" {
		t.Errorf("text not updated: %q", results[0].Text)
	}
	count, _ := s.Count(ctx)
	if count != 3 {
		t.Errorf("update should not add records, got %d", count)
	}
}

func TestQueryFilterAndK(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := s.Query(ctx, "anything", map[string]string{"type": "skill"}, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 skill result, got %d", len(results))
	}
	if results[0].Metadata["type"] != "skill" {
		t.Errorf("filter leaked wrong type: %v", results[0].Metadata)
	}

	all, err := s.Query(ctx, "anything", nil, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected k=2 results, got %d", len(all))
	}
}

func TestQuerySelfSimilarity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	results, err := s.Query(ctx, "notes about garden watering", nil, 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) == 0 || results[0].ID != "chunk:bbb" {
		t.Fatalf("expected exact text to rank first, got %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Errorf("expected near-1 self similarity, got %f", results[0].Score)
	}
}

func TestDeleteByFilter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	deleted, err := s.Delete(ctx, map[string]string{"type": "session"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	count, _ := s.Count(ctx)
	if count != 2 {
		t.Errorf("expected 2 remaining, got %d", count)
	}

	if _, err := s.Delete(ctx, nil); err == nil {
		t.Error("empty filter should be rejected")
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDocuments != 3 {
		t.Errorf("expected 3 total, got %d", stats.TotalDocuments)
	}
	if stats.ByType["session"] != 1 || stats.ByType["workspace"] != 1 || stats.ByType["skill"] != 1 {
		t.Errorf("unexpected type distribution: %v", stats.ByType)
	}
	if stats.BySource["skill:messaging"] != 1 {
		t.Errorf("unexpected source distribution: %v", stats.BySource)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rag.db")
	emb := embedding.NewHashEmbedder(64)
	ctx := context.Background()

	s, err := NewSQLiteStore(path, emb)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path, embedding.NewHashEmbedder(64))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	count, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 records after reopen, got %d", count)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.0, 0}
	got := decodeVector(encodeVector(vec))
	if len(got) != len(vec) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: got %f, want %f", i, got[i], vec[i])
		}
	}
}
