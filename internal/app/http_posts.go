package app

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxWorkflowBody = 1 << 20

func (s *HTTPServer) mountPosts(r chi.Router) {
	r.Route("/blog-posts", func(r chi.Router) {
		r.With(s.require(rbac.ActionRead)).Get("/", s.handleListPosts)
		r.With(s.require(rbac.ActionWrite)).Post("/", s.handleCreatePost)

		r.Route("/{postID}", func(r chi.Router) {
			r.With(s.require(rbac.ActionRead)).Get("/", s.handleGetPost)
			r.With(s.require(rbac.ActionWrite)).Put("/", s.handleUpdatePost)
			r.With(s.require(rbac.ActionWrite)).Delete("/", s.handleDeletePost)

			r.With(s.require(rbac.ActionRead)).Get("/history", s.handlePostHistory)
			r.With(s.require(rbac.ActionRead)).Get("/history/{hash}", s.handlePostRevision)
			r.With(s.require(rbac.ActionRead)).Get("/export", s.handleExportPost)

			r.With(s.require(rbac.ActionWrite)).Post("/workflow/{phase}", s.handleWorkflowPhase)
			r.With(s.require(rbac.ActionWrite)).Post("/meta-tags", s.handleMetaTags)
			r.With(s.require(rbac.ActionPublish)).Post("/publish", s.handlePublishPost)
			r.With(s.require(rbac.ActionRead)).Get("/publishing", s.handleListPublishing)
			r.With(s.require(rbac.ActionRead)).Get("/link-opportunities", s.handleLinkOpportunities)
			r.With(s.require(rbac.ActionWrite)).Post("/approvals", s.handleRequestApproval)
		})
	})

	r.With(s.require(rbac.ActionRead)).Get("/approvals", s.handleListApprovals)
	r.With(s.require(rbac.ActionApprove)).Put("/approvals/{approvalID}", s.handleDecideApproval)
}

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	filter := store.PostFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	posts, err := s.service.ListPosts(r.Context(), orgID, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts, "limit": filter.Limit, "offset": filter.Offset})
}

func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input PostInput
	if !s.decode(w, r, &input) {
		return
	}
	post, err := s.service.CreatePost(r.Context(), session, orgID, input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *HTTPServer) handleGetPost(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	post, err := s.service.GetPost(r.Context(), orgID, chi.URLParam(r, "postID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input PostInput
	if !s.decode(w, r, &input) {
		return
	}
	post, err := s.service.UpdatePost(r.Context(), session, orgID, chi.URLParam(r, "postID"), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	if err := s.service.DeletePost(r.Context(), session, orgID, chi.URLParam(r, "postID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePostHistory(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	commits, err := s.service.PostHistory(r.Context(), orgID, chi.URLParam(r, "postID"), queryInt(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handlePostRevision(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	revision, err := s.service.PostRevision(r.Context(), orgID, chi.URLParam(r, "postID"), chi.URLParam(r, "hash"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revision)
}

func (s *HTTPServer) handleExportPost(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	result, err := s.service.ExportPost(r.Context(), orgID, chi.URLParam(r, "postID"), r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleWorkflowPhase(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWorkflowBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	result, err := s.service.RunWorkflowPhase(r.Context(), session, orgID, chi.URLParam(r, "postID"), chi.URLParam(r, "phase"), body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleMetaTags(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	tags, err := s.service.GenerateMetaTags(r.Context(), orgID, chi.URLParam(r, "postID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *HTTPServer) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var body struct {
		IntegrationID string `json:"integrationId"`
		Draft         bool   `json:"draft"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	record, err := s.service.PublishPost(r.Context(), orgID, chi.URLParam(r, "postID"), body.IntegrationID, body.Draft)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *HTTPServer) handleListPublishing(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	records, err := s.service.ListPublishing(r.Context(), orgID, chi.URLParam(r, "postID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *HTTPServer) handleLinkOpportunities(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	opportunities, err := s.service.LinkOpportunities(r.Context(), orgID, chi.URLParam(r, "postID"), queryInt(r, "limit", 10))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opportunities})
}

func (s *HTTPServer) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input ApprovalRequestInput
	if !s.decode(w, r, &input) {
		return
	}
	approval, err := s.service.RequestApproval(r.Context(), session, orgID, chi.URLParam(r, "postID"), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval)
}

func (s *HTTPServer) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	approvals, err := s.service.ListApprovals(r.Context(), orgID, r.URL.Query().Get("status"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func (s *HTTPServer) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	session, orgID, ok := s.org(w, r)
	if !ok {
		return
	}
	var input ApprovalDecisionInput
	if !s.decode(w, r, &input) {
		return
	}
	approval, err := s.service.DecideApproval(r.Context(), session, orgID, chi.URLParam(r, "approvalID"), input)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}
