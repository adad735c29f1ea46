package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclaw/kioku/internal/models"
	"github.com/openclaw/kioku/internal/store"
)

type searchRequest struct {
	Query  string `json:"query"`
	Type   string `json:"type,omitempty"`
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Results []store.QueryResult `json:"results"`
	Count   int                 `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))

	results, err := s.store.Query(r.Context(), req.Query, buildFilter(req.Type, req.Source), req.Limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []store.QueryResult{}
	}
	s.respondJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

type addDocumentRequest struct {
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.Source) == "" {
		s.respondError(w, http.StatusBadRequest, "text and source are required")
		return
	}

	id := "api:" + uuid.NewString()
	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata[models.MetaType] = string(models.TypeAPI)
	metadata[models.MetaSource] = req.Source

	s.logger.Debug("add document request", zap.String("id", id), zap.String("source", req.Source))
	if err := s.store.Upsert(r.Context(), []store.Record{{ID: id, Text: req.Text, Metadata: metadata}}); err != nil {
		s.logger.Error("add document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "stored"})
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	filter := buildFilter(r.URL.Query().Get("type"), r.URL.Query().Get("source"))
	if len(filter) == 0 {
		s.respondError(w, http.StatusBadRequest, "type or source filter is required")
		return
	}
	s.logger.Debug("delete documents request", zap.Any("filter", filter))

	deleted, err := s.store.Delete(r.Context(), filter)
	if err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func buildFilter(docType, source string) map[string]string {
	filter := make(map[string]string)
	if docType != "" {
		filter[models.MetaType] = docType
	}
	if source != "" {
		filter[models.MetaSource] = source
	}
	return filter
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
