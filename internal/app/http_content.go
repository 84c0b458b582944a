package app

import (
	"errors"
	"net/http"
	"strings"

	"blogwriter/api/internal/integrations"
	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/media"
	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/search"
	"github.com/go-chi/chi/v5"
)

// Multipart framing around a single upload stays well under this.
const multipartOverhead = 1 << 20

func (s *HTTPServer) mountContent(r chi.Router) {
	r.With(s.require(rbac.ActionRead)).Get("/media", s.handleListMedia)
	r.With(s.require(rbac.ActionWrite)).Post("/media", s.handleUploadMedia)
	r.With(s.require(rbac.ActionWrite)).Delete("/media/{assetID}", s.handleDeleteMedia)

	r.Route("/integrations", func(r chi.Router) {
		r.With(s.require(rbac.ActionRead)).Get("/", s.handleListIntegrations)
		r.Group(func(r chi.Router) {
			r.Use(s.require(rbac.ActionManage))
			r.Post("/", s.handleCreateIntegration)
			r.Put("/{integrationID}", s.handleUpdateIntegration)
			r.Delete("/{integrationID}", s.handleDeleteIntegration)
			r.Post("/{integrationID}/default", s.handleSetDefaultIntegration)
			r.Post("/{integrationID}/test", s.handleTestIntegration)
		})
	})

	r.Route("/interlinking", func(r chi.Router) {
		r.With(s.require(rbac.ActionWrite)).Post("/analyze", s.handleAnalyzeLinks)
		r.With(s.require(rbac.ActionRead)).Get("/clusters", s.handleClusters)
		r.With(s.require(rbac.ActionRead)).Get("/graph", s.handleLinkGraph)
		r.With(s.require(rbac.ActionWrite)).Post("/links", s.handleRecordLink)
	})

	r.With(s.require(rbac.ActionRead)).Get("/search", s.handleSearch)
}

func (s *HTTPServer) handleListMedia(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)
	if r.URL.Query().Get("source") == "remote" {
		assets, err := s.service.RemoteMedia(r.Context(), orgID, limit)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
		return
	}
	assets, err := s.service.ListMedia(r.Context(), orgID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (s *HTTPServer) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	if !s.service.MediaEnabled() {
		s.respondError(w, r, media.ErrProviderDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, media.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form with a file field", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	asset, err := s.service.UploadMedia(r.Context(), session, orgID, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *HTTPServer) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteMedia(r.Context(), orgID, chi.URLParam(r, "assetID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	items, err := s.service.ListIntegrations(r.Context(), orgID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": items})
}

func (s *HTTPServer) handleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input integrations.Input
	if !s.decode(w, r, &input) {
		return
	}
	item, err := s.service.CreateIntegration(r.Context(), orgID, input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleUpdateIntegration(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input integrations.Input
	if !s.decode(w, r, &input) {
		return
	}
	item, err := s.service.UpdateIntegration(r.Context(), orgID, chi.URLParam(r, "integrationID"), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteIntegration(r.Context(), orgID, chi.URLParam(r, "integrationID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSetDefaultIntegration(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	item, err := s.service.SetDefaultIntegration(r.Context(), orgID, chi.URLParam(r, "integrationID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleTestIntegration(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	result, err := s.service.TestIntegration(r.Context(), orgID, chi.URLParam(r, "integrationID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAnalyzeLinks(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	analysis, err := s.service.AnalyzeLinks(r.Context(), orgID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *HTTPServer) handleClusters(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	clusters, err := s.service.ContentClusters(r.Context(), orgID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

func (s *HTTPServer) handleLinkGraph(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	links, err := s.service.LinkGraph(r.Context(), orgID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (s *HTTPServer) handleRecordLink(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input interlink.LinkInput
	if !s.decode(w, r, &input) {
		return
	}
	link, err := s.service.RecordLink(r.Context(), orgID, input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q is required", nil)
		return
	}
	status := query.Get("status")
	if status != "" && !validPostStatus(status) {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "unknown status filter", nil)
		return
	}
	response := s.service.Search(r.Context(), orgID, search.Query{
		Text:   text,
		Status: status,
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	})
	writeJSON(w, http.StatusOK, response)
}
