package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"blogwriter/api/internal/keywords"
	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/sse"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxStreamBody = 1 << 20

func (s *HTTPServer) mountGeneration(r chi.Router) {
	r.Route("/blog-generation", func(r chi.Router) {
		r.With(s.require(rbac.ActionWrite)).Post("/", s.handleStartGeneration)
		r.With(s.require(rbac.ActionWrite)).Post("/stream", s.handleGenerationStream)
		r.With(s.require(rbac.ActionRead)).Get("/jobs/{jobID}", s.handlePollJob)
		r.With(s.require(rbac.ActionRead)).Get("/queue", s.handleListQueue)
		r.With(s.require(rbac.ActionRead)).Get("/queue/{itemID}", s.handleGetQueueItem)
		r.With(s.require(rbac.ActionWrite)).Put("/queue/{itemID}/status", s.handleUpdateQueueStatus)
		r.With(s.require(rbac.ActionWrite)).Delete("/queue/{itemID}", s.handleCancelQueueItem)
	})
}

func (s *HTTPServer) mountKeywords(r chi.Router) {
	r.Route("/keywords", func(r chi.Router) {
		r.With(s.require(rbac.ActionWrite)).Post("/research", s.handleKeywordResearch)
		r.With(s.require(rbac.ActionRead)).Get("/research", s.handleListKeywordResearch)
		r.With(s.require(rbac.ActionRead)).Get("/research/{researchID}", s.handleGetKeywordResearch)
		r.With(s.require(rbac.ActionWrite)).Delete("/research/{researchID}", s.handleDeleteKeywordResearch)
		r.With(s.require(rbac.ActionRead)).Post("/suggestions", s.handleKeywordSuggestions)
		r.With(s.require(rbac.ActionWrite)).Post("/stream", s.handleKeywordStream)
	})
}

func (s *HTTPServer) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input GenerationInput
	if !s.decode(w, r, &input) {
		return
	}
	result, status, err := s.service.StartGeneration(r.Context(), session, orgID, input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, status, result)
}

func (s *HTTPServer) handlePollJob(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	result, err := s.service.PollJob(r.Context(), session, orgID, chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	items, err := s.service.ListQueue(r.Context(), orgID, r.URL.Query().Get("status"), queryInt(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleGetQueueItem(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	item, err := s.service.GetQueueItem(r.Context(), orgID, chi.URLParam(r, "itemID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleUpdateQueueStatus(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	item, err := s.service.UpdateQueueStatus(r.Context(), orgID, chi.URLParam(r, "itemID"), body.Status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCancelQueueItem(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	item, err := s.service.CancelQueueItem(r.Context(), orgID, chi.URLParam(r, "itemID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleGenerationStream(w http.ResponseWriter, r *http.Request) {
	var input GenerationInput
	if !s.decode(w, r, &input) {
		return
	}
	s.stream(w, r, func(ctx context.Context) (*http.Response, error) {
		return s.service.OpenGenerationStream(ctx, input)
	})
}

func (s *HTTPServer) handleKeywordStream(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStreamBody))
	if err != nil || (len(payload) > 0 && !json.Valid(payload)) {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	s.stream(w, r, func(ctx context.Context) (*http.Response, error) {
		return s.service.OpenKeywordStream(ctx, payload)
	})
}

// stream opens an upstream SSE response bound to the request context and
// relays it. Errors after the stream has started are sent as an event.
func (s *HTTPServer) stream(w http.ResponseWriter, r *http.Request, open func(ctx context.Context) (*http.Response, error)) {
	upstream, err := open(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	err = sse.Proxy(w, upstream)
	if err == nil || errors.Is(r.Context().Err(), context.Canceled) {
		return
	}
	var statusErr *sse.UpstreamStatusError
	if errors.As(err, &statusErr) {
		s.logger.Warn("upstream stream rejected", zap.String("request_id", requestID(r)), zap.Int("status", statusErr.Status))
		return
	}
	s.logger.Warn("stream interrupted", zap.String("request_id", requestID(r)), zap.Error(err))
	_ = sse.WriteEvent(w, map[string]any{"type": "error", "error": "stream interrupted"})
}

func (s *HTTPServer) handleKeywordResearch(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var req keywords.Request
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.service.ResearchKeywords(r.Context(), session, orgID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListKeywordResearch(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	research, err := s.service.ListKeywordResearch(r.Context(), orgID, queryInt(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"research": research})
}

func (s *HTTPServer) handleGetKeywordResearch(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	research, err := s.service.GetKeywordResearch(r.Context(), orgID, chi.URLParam(r, "researchID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, research)
}

func (s *HTTPServer) handleDeleteKeywordResearch(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteKeywordResearch(r.Context(), orgID, chi.URLParam(r, "researchID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleKeywordSuggestions(w http.ResponseWriter, r *http.Request) {
	var input SuggestionInput
	if !s.decode(w, r, &input) {
		return
	}
	suggestions, err := s.service.KeywordSuggestions(r.Context(), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}
