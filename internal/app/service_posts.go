package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"blogwriter/api/internal/export"
	"blogwriter/api/internal/gitrepo"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"blogwriter/api/internal/workflow"
	"go.uber.org/zap"
)

type PostInput struct {
	Title            *string         `json:"title"`
	Slug             *string         `json:"slug"`
	Content          *string         `json:"content"`
	Excerpt          *string         `json:"excerpt"`
	Status           *string         `json:"status"`
	Keywords         []string        `json:"keywords"`
	FeaturedImageURL *string         `json:"featuredImageUrl"`
	Metadata         json.RawMessage `json:"metadata"`
}

func validPostStatus(status string) bool {
	for _, candidate := range store.PostStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func (s *Service) ListPosts(ctx context.Context, orgID string, filter store.PostFilter) ([]store.BlogPost, error) {
	if filter.Status != "" && !validPostStatus(filter.Status) {
		return nil, validationError("unknown status filter")
	}
	return s.store.ListPosts(ctx, orgID, filter)
}

func (s *Service) GetPost(ctx context.Context, orgID, postID string) (store.BlogPost, error) {
	return s.store.GetPost(ctx, orgID, postID)
}

func (s *Service) CreatePost(ctx context.Context, session Session, orgID string, input PostInput) (store.BlogPost, error) {
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		return store.BlogPost{}, validationError("title is required")
	}
	now := s.now().UTC()
	post := store.BlogPost{
		ID:             util.NewID(),
		OrganizationID: orgID,
		CreatedBy:      session.UserID,
		Status:         store.PostStatusDraft,
		Keywords:       []string{},
		Metadata:       json.RawMessage(`{}`),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := applyPostInput(&post, input); err != nil {
		return store.BlogPost{}, err
	}
	if post.Slug == "" {
		post.Slug = util.Slugify(post.Title)
	}
	if post.Slug == "" {
		return store.BlogPost{}, validationError("slug must contain letters or digits")
	}

	if err := s.store.InsertPost(ctx, post); err != nil {
		return store.BlogPost{}, err
	}
	s.afterSave(post, session.UserName, "Create post")
	return post, nil
}

func (s *Service) UpdatePost(ctx context.Context, session Session, orgID, postID string, input PostInput) (store.BlogPost, error) {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return store.BlogPost{}, err
	}
	if err := applyPostInput(&post, input); err != nil {
		return store.BlogPost{}, err
	}
	if post.Slug == "" {
		return store.BlogPost{}, validationError("slug must contain letters or digits")
	}
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return store.BlogPost{}, err
	}
	post.UpdatedAt = s.now().UTC()
	s.afterSave(post, session.UserName, "Update post")
	return post, nil
}

func applyPostInput(post *store.BlogPost, input PostInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return validationError("title cannot be empty")
		}
		post.Title = title
	}
	if input.Slug != nil {
		post.Slug = util.Slugify(*input.Slug)
	}
	if input.Content != nil {
		post.Content = *input.Content
	}
	if input.Excerpt != nil {
		post.Excerpt = strings.TrimSpace(*input.Excerpt)
	}
	if input.Status != nil {
		status := strings.TrimSpace(*input.Status)
		if !validPostStatus(status) {
			return validationError("unknown status")
		}
		post.Status = status
	}
	if input.Keywords != nil {
		post.Keywords = workflow.MergeKeywords(nil, input.Keywords)
	}
	if input.FeaturedImageURL != nil {
		post.FeaturedImageURL = strings.TrimSpace(*input.FeaturedImageURL)
	}
	if len(input.Metadata) > 0 {
		if _, err := workflow.Metadata(input.Metadata); err != nil {
			return validationError("metadata must be a JSON object")
		}
		post.Metadata = input.Metadata
	}
	post.WordCount = util.WordCount(post.Content)
	return nil
}

// afterSave refreshes the search index and records a revision. Both are
// best effort; the post row is already committed.
func (s *Service) afterSave(post store.BlogPost, author, message string) {
	if s.search != nil {
		s.search.IndexPost(post)
	}
	if s.revisions == nil {
		return
	}
	if author == "" {
		author = "system"
	}
	if _, err := s.revisions.Commit(post.ID, gitrepo.SnapshotOf(post), author, message); err != nil {
		s.logger.Warn("commit post revision", zap.String("post_id", post.ID), zap.Error(err))
	}
}

func (s *Service) DeletePost(ctx context.Context, session Session, orgID, postID string) error {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return err
	}
	role := rbac.Normalize(session.Role)
	owner := post.CreatedBy == session.UserID && rbac.Can(role, rbac.ActionWrite)
	if !owner && !rbac.Can(role, rbac.ActionManage) {
		return errForbidden
	}
	if err := s.store.DeletePost(ctx, orgID, postID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePost(postID)
	}
	if s.revisions != nil {
		if err := s.revisions.Remove(postID); err != nil {
			s.logger.Warn("remove post revisions", zap.String("post_id", postID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) PostHistory(ctx context.Context, orgID, postID string, limit int) ([]store.CommitInfo, error) {
	if _, err := s.store.GetPost(ctx, orgID, postID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return []store.CommitInfo{}, nil
	}
	return s.revisions.History(postID, limit)
}

type RevisionResult struct {
	Revision store.CommitInfo      `json:"revision"`
	Snapshot gitrepo.Snapshot      `json:"snapshot"`
	Changes  []gitrepo.FieldChange `json:"changes"`
}

// PostRevision loads one revision and lists how it differs from the current post.
func (s *Service) PostRevision(ctx context.Context, orgID, postID, hash string) (RevisionResult, error) {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return RevisionResult{}, err
	}
	if s.revisions == nil {
		return RevisionResult{}, gitrepo.ErrRevisionNotFound
	}
	snapshot, info, err := s.revisions.Revision(postID, hash)
	if err != nil {
		return RevisionResult{}, err
	}
	return RevisionResult{
		Revision: info,
		Snapshot: snapshot,
		Changes:  gitrepo.Changes(snapshot, gitrepo.SnapshotOf(post)),
	}, nil
}

func (s *Service) ExportPost(ctx context.Context, orgID, postID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return nil, err
	}
	if s.export == nil {
		return nil, export.ErrPDFDependencyMissing
	}
	return s.export.Export(ctx, post, parsed)
}

// GenerateMetaTags produces meta tags for a post and stores them under
// metadata.seo.
func (s *Service) GenerateMetaTags(ctx context.Context, orgID, postID string) (metatags.Tags, error) {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return metatags.Tags{}, err
	}
	tags := s.metaTags.Generate(ctx, post)

	meta, err := workflow.Metadata(post.Metadata)
	if err != nil {
		return metatags.Tags{}, err
	}
	if err := workflow.SetSEO(meta, tags); err != nil {
		return metatags.Tags{}, err
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return metatags.Tags{}, err
	}
	post.Metadata = encoded
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return metatags.Tags{}, err
	}
	return tags, nil
}

type ApprovalRequestInput struct {
	ReviewerID string `json:"reviewerId"`
	Comment    string `json:"comment"`
}

type ApprovalDecisionInput struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

var reviewerRoles = []string{string(rbac.RoleSuperAdmin), string(rbac.RoleAdmin), string(rbac.RoleManager)}

func (s *Service) RequestApproval(ctx context.Context, session Session, orgID, postID string, input ApprovalRequestInput) (store.Approval, error) {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return store.Approval{}, err
	}

	var recipients []store.User
	if reviewerID := strings.TrimSpace(input.ReviewerID); reviewerID != "" {
		reviewer, err := s.store.GetOrgUser(ctx, orgID, reviewerID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Approval{}, validationError("reviewer not found")
		}
		if err != nil {
			return store.Approval{}, err
		}
		if !rbac.Can(rbac.Normalize(reviewer.Role), rbac.ActionApprove) || reviewer.DeactivatedAt != nil {
			return store.Approval{}, validationError("reviewer cannot approve posts")
		}
		recipients = append(recipients, reviewer)
	}

	approval := store.Approval{
		ID:             util.NewID(),
		OrganizationID: orgID,
		PostID:         post.ID,
		PostTitle:      post.Title,
		RequestedBy:    session.UserID,
		ReviewerID:     strings.TrimSpace(input.ReviewerID),
		Status:         store.ApprovalPending,
		Comment:        strings.TrimSpace(input.Comment),
	}
	if err := s.store.RequestApproval(ctx, approval); err != nil {
		return store.Approval{}, err
	}

	if s.SMTPConfigured() {
		if len(recipients) == 0 {
			recipients, err = s.store.ListActiveUsersByRole(ctx, orgID, reviewerRoles)
			if err != nil {
				s.logger.Warn("list reviewers", zap.String("org_id", orgID), zap.Error(err))
			}
		}
		link := s.appURL("/posts/"+post.ID, nil)
		for _, recipient := range recipients {
			if recipient.ID == session.UserID {
				continue
			}
			if err := s.mailer.SendApprovalRequest(recipient.Email, session.UserName, post.Title, link); err != nil {
				s.logger.Warn("send approval request", zap.String("approval_id", approval.ID), zap.Error(err))
			}
		}
	}

	stored, err := s.store.GetApproval(ctx, orgID, approval.ID)
	if err != nil {
		return approval, nil
	}
	return stored, nil
}

func (s *Service) ListApprovals(ctx context.Context, orgID, status string) ([]store.Approval, error) {
	switch status {
	case "", store.ApprovalPending, store.ApprovalApproved, store.ApprovalRejected, store.ApprovalChangesRequested:
	default:
		return nil, validationError("unknown approval status")
	}
	return s.store.ListApprovals(ctx, orgID, status)
}

// DecideApproval records a reviewer decision and moves the post accordingly.
// Requesters cannot decide their own approvals.
func (s *Service) DecideApproval(ctx context.Context, session Session, orgID, approvalID string, input ApprovalDecisionInput) (store.Approval, error) {
	var postStatus string
	switch input.Status {
	case store.ApprovalApproved:
		postStatus = store.PostStatusApproved
	case store.ApprovalRejected, store.ApprovalChangesRequested:
		postStatus = store.PostStatusDraft
	default:
		return store.Approval{}, validationError("status must be approved, rejected, or changes_requested")
	}

	approval, err := s.store.GetApproval(ctx, orgID, approvalID)
	if err != nil {
		return store.Approval{}, err
	}
	if approval.RequestedBy == session.UserID {
		return store.Approval{}, domainError(http.StatusForbidden, "SELF_APPROVAL", "You cannot review your own request", nil)
	}

	comment := strings.TrimSpace(input.Comment)
	if err := s.store.DecideApproval(ctx, orgID, approvalID, session.UserID, input.Status, comment, postStatus); err != nil {
		return store.Approval{}, err
	}

	if s.SMTPConfigured() {
		if requester, err := s.store.GetOrgUser(ctx, orgID, approval.RequestedBy); err == nil {
			link := s.appURL("/posts/"+approval.PostID, nil)
			if err := s.mailer.SendApprovalDecision(requester.Email, approval.PostTitle, input.Status, session.UserName, comment, link); err != nil {
				s.logger.Warn("send approval decision", zap.String("approval_id", approvalID), zap.Error(err))
			}
		}
	}

	return s.store.GetApproval(ctx, orgID, approvalID)
}
