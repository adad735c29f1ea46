package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/openclaw/kioku/internal/embedding"
	"github.com/openclaw/kioku/internal/models"
	"github.com/openclaw/kioku/internal/state"
	"github.com/openclaw/kioku/internal/store"
)

type fakeAdapter struct {
	marker    int64
	markerErr error
	docs      []*models.RawDocument
}

func (f *fakeAdapter) Marker() (int64, error) {
	return f.marker, f.markerErr
}

func (f *fakeAdapter) Scan(ctx context.Context, fn func(*models.RawDocument) error) error {
	for _, doc := range f.docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// failingStore fails every upsert that contains a record of the given type.
type failingStore struct {
	store.VectorStore
	failType string
}

func (f *failingStore) Upsert(ctx context.Context, records []store.Record) error {
	for _, rec := range records {
		if rec.Metadata[models.MetaType] == f.failType {
			return errors.New("store unavailable")
		}
	}
	return f.VectorStore.Upsert(ctx, records)
}

func sessionDoc(name string, messages int) *models.RawDocument {
	units := make([]string, messages)
	for i := range units {
		units[i] = fmt.Sprintf("USER: message %d", i)
	}
	return &models.RawDocument{
		Source: name,
		Type:   models.TypeSession,
		Units:  units,
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.MemoryStore, *state.Tracker) {
	t.Helper()
	ms := store.NewMemoryStore(embedding.NewHashEmbedder(32))
	tracker := state.NewTracker(filepath.Join(t.TempDir(), "index-state.json"))
	return New(ms, tracker, WithBatchSize(10)), ms, tracker
}

func TestRunIngestsAndCommitsMarker(t *testing.T) {
	p, ms, tracker := newTestPipeline(t)
	ctx := context.Background()

	adapter := &fakeAdapter{marker: 1000, docs: []*models.RawDocument{sessionDoc("sessions/s1.jsonl", 45)}}
	report, err := p.Run(ctx, []Collection{{
		Name: models.CollectionSessions, Adapter: adapter, ChunkSize: 20, ChunkOverlap: 5,
	}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.State() != "DONE" {
		t.Errorf("expected DONE, got %s", report.State())
	}
	cr := report.Collections[0]
	if cr.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%v)", cr.Status, cr.Err)
	}
	if cr.Documents != 1 || cr.Chunks != 3 {
		t.Errorf("expected 1 document and 3 chunks, got %d/%d", cr.Documents, cr.Chunks)
	}

	count, _ := ms.Count(ctx)
	if count != 3 {
		t.Errorf("expected 3 records in store, got %d", count)
	}

	st := tracker.Load()
	if st.LastSessionIndex != 1000 {
		t.Errorf("expected committed marker 1000, got %d", st.LastSessionIndex)
	}
	if st.SessionCount != 1 {
		t.Errorf("expected sessionCount 1, got %d", st.SessionCount)
	}
	if st.TotalDocuments != 3 {
		t.Errorf("expected totalDocuments 3, got %d", st.TotalDocuments)
	}
	if st.UpdatedAt == "" {
		t.Error("expected updatedAt to be stamped")
	}
}

func TestRunSkipsUnchangedCollection(t *testing.T) {
	p, ms, _ := newTestPipeline(t)
	ctx := context.Background()

	adapter := &fakeAdapter{marker: 1000, docs: []*models.RawDocument{sessionDoc("sessions/s1.jsonl", 10)}}
	collections := []Collection{{Name: models.CollectionSessions, Adapter: adapter, ChunkSize: 20, ChunkOverlap: 5}}

	if _, err := p.Run(ctx, collections); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	countAfterFirst, _ := ms.Count(ctx)

	report, err := p.Run(ctx, collections)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if report.Collections[0].Status != StatusSkipped {
		t.Errorf("expected skipped, got %s", report.Collections[0].Status)
	}
	count, _ := ms.Count(ctx)
	if count != countAfterFirst {
		t.Errorf("skip should not touch the store: %d vs %d", count, countAfterFirst)
	}
}

func TestRunReprocessesWhenMarkerAdvances(t *testing.T) {
	p, _, tracker := newTestPipeline(t)
	ctx := context.Background()

	adapter := &fakeAdapter{marker: 1000, docs: []*models.RawDocument{sessionDoc("sessions/s1.jsonl", 10)}}
	collections := []Collection{{Name: models.CollectionSessions, Adapter: adapter, ChunkSize: 20, ChunkOverlap: 5}}

	if _, err := p.Run(ctx, collections); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	adapter.marker = 2000
	report, err := p.Run(ctx, collections)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if report.Collections[0].Status != StatusSucceeded {
		t.Errorf("expected succeeded on newer marker, got %s", report.Collections[0].Status)
	}
	if got := tracker.Load().LastSessionIndex; got != 2000 {
		t.Errorf("expected marker 2000, got %d", got)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	ms := store.NewMemoryStore(embedding.NewHashEmbedder(32))
	tracker := state.NewTracker(filepath.Join(t.TempDir(), "index-state.json"))
	p := New(&failingStore{VectorStore: ms, failType: "workspace"}, tracker, WithBatchSize(10))
	ctx := context.Background()

	sessions := &fakeAdapter{marker: 1000, docs: []*models.RawDocument{sessionDoc("sessions/s1.jsonl", 10)}}
	workspace := &fakeAdapter{marker: 2000, docs: []*models.RawDocument{{
		Source: "notes/a.md", Type: models.TypeWorkspace, Body: "line one\nline two\n",
	}}}

	report, err := p.Run(ctx, []Collection{
		{Name: models.CollectionSessions, Adapter: sessions, ChunkSize: 20, ChunkOverlap: 5},
		{Name: models.CollectionWorkspace, Adapter: workspace, ChunkSize: 200, ChunkOverlap: 20},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.State() != "DEGRADED" {
		t.Errorf("expected DEGRADED, got %s", report.State())
	}
	if report.AllFailed() {
		t.Error("one surviving collection should not report AllFailed")
	}

	st := tracker.Load()
	if st.LastSessionIndex != 1000 {
		t.Errorf("sessions marker should advance, got %d", st.LastSessionIndex)
	}
	if st.LastWorkspaceIndex != 0 {
		t.Errorf("workspace marker should be retained at 0, got %d", st.LastWorkspaceIndex)
	}
}

func TestMarkerFailureFailsCollection(t *testing.T) {
	p, _, tracker := newTestPipeline(t)
	ctx := context.Background()

	adapter := &fakeAdapter{markerErr: errors.New("sessions dir missing")}
	report, err := p.Run(ctx, []Collection{{
		Name: models.CollectionSessions, Adapter: adapter, ChunkSize: 20, ChunkOverlap: 5,
	}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Collections[0].Status != StatusFailed {
		t.Errorf("expected failed, got %s", report.Collections[0].Status)
	}
	if !report.AllFailed() {
		t.Error("single failing collection should report AllFailed")
	}
	if got := tracker.Load().LastSessionIndex; got != 0 {
		t.Errorf("no state should be committed, got marker %d", got)
	}
}

func TestRunIsIdempotentByIdentity(t *testing.T) {
	p, ms, _ := newTestPipeline(t)
	ctx := context.Background()

	adapter := &fakeAdapter{marker: 1000, docs: []*models.RawDocument{sessionDoc("sessions/s1.jsonl", 45)}}
	collections := []Collection{{Name: models.CollectionSessions, Adapter: adapter, ChunkSize: 20, ChunkOverlap: 5}}

	if _, err := p.Run(ctx, collections); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Marker advances but content is identical; records dedupe by content ID.
	adapter.marker = 2000
	if _, err := p.Run(ctx, collections); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	count, _ := ms.Count(ctx)
	if count != 3 {
		t.Errorf("identical content should not grow the store, got %d records", count)
	}
}
