package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/openclaw/kioku/internal/config"
	"github.com/openclaw/kioku/internal/embedding"
	"github.com/openclaw/kioku/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore(embedding.NewHashEmbedder(32))
	srv := NewServer(ms, &config.ServerConfig{Host: "localhost", Port: 0}, zap.NewNop())
	return srv, ms
}

func seedStore(t *testing.T, ms *store.MemoryStore) {
	t.Helper()
	err := ms.Upsert(context.Background(), []store.Record{
		{ID: "chunk:1", Text: "gateway configuration notes", Metadata: map[string]string{"type": "workspace", "source": "notes/gateway.md"}},
		{ID: "chunk:2", Text: "session about cooking", Metadata: map[string]string{"type": "session", "source": "sessions/s1.jsonl"}},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	srv, ms := newTestServer(t)
	seedStore(t, ms)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/search", searchRequest{Query: "gateway configuration notes", Limit: 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("expected 2 results, got %d", resp.Count)
	}
	if resp.Results[0].ID != "chunk:1" {
		t.Errorf("expected exact match first, got %s", resp.Results[0].ID)
	}
}

func TestHandleSearchFiltered(t *testing.T) {
	srv, ms := newTestServer(t)
	seedStore(t, ms)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/search", searchRequest{Query: "anything", Type: "session"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Results[0].Metadata["type"] != "session" {
		t.Errorf("filter not applied: %+v", resp)
	}
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/search", searchRequest{Query: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAddDocument(t *testing.T) {
	srv, ms := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents", addDocumentRequest{
		Text: "remember the wifi password", Source: "api-client",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp["id"], "api:") {
		t.Errorf("expected api-prefixed id, got %s", resp["id"])
	}
	count, _ := ms.Count(context.Background())
	if count != 1 {
		t.Errorf("expected 1 stored record, got %d", count)
	}
}

func TestHandleAddDocumentRequiresFields(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents", addDocumentRequest{Text: "no source"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleDeleteDocuments(t *testing.T) {
	srv, ms := newTestServer(t)
	seedStore(t, ms)

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/documents?type=session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["deleted"] != 1 {
		t.Errorf("expected 1 deleted, got %d", resp["deleted"])
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/documents", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unfiltered delete should be rejected, got %d", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	srv, ms := newTestServer(t)
	seedStore(t, ms)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats store.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 2 {
		t.Errorf("expected 2 total, got %d", stats.TotalDocuments)
	}
	if stats.ByType["session"] != 1 {
		t.Errorf("unexpected type stats: %v", stats.ByType)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
