package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blogwriter/api/internal/auth"
	"blogwriter/api/internal/authpw"
	"blogwriter/api/internal/blogwriter"
	"blogwriter/api/internal/config"
	"blogwriter/api/internal/export"
	"blogwriter/api/internal/gitrepo"
	"blogwriter/api/internal/integrations"
	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/keywords"
	"blogwriter/api/internal/media"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/publish"
	"blogwriter/api/internal/rbac"
	"blogwriter/api/internal/search"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"blogwriter/api/internal/workflow"
	"go.uber.org/zap"
)

type Session struct {
	Token          string
	RefreshToken   string
	UserID         string
	UserName       string
	Email          string
	Role           string
	OrganizationID string
	JTI            string
	ExpiresAt      time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetOrgUser(ctx context.Context, orgID, userID string) (store.User, error)
	ListUsers(ctx context.Context, orgID string) ([]store.User, error)
	ListActiveUsersByRole(ctx context.Context, orgID string, roles []string) ([]store.User, error)
	UpdateUserRole(ctx context.Context, orgID, userID, role string) error
	DeactivateUser(ctx context.Context, orgID, userID string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertOrganization(ctx context.Context, org store.Organization) error
	GetOrganization(ctx context.Context, orgID string) (store.Organization, error)
	ListOrganizations(ctx context.Context) ([]store.Organization, error)
	UpdateOrganization(ctx context.Context, org store.Organization) error
	DeleteOrganization(ctx context.Context, orgID string) error

	InsertPost(ctx context.Context, post store.BlogPost) error
	GetPost(ctx context.Context, orgID, postID string) (store.BlogPost, error)
	ListPosts(ctx context.Context, orgID string, filter store.PostFilter) ([]store.BlogPost, error)
	UpdatePost(ctx context.Context, post store.BlogPost) error
	DeletePost(ctx context.Context, orgID, postID string) error

	RequestApproval(ctx context.Context, approval store.Approval) error
	GetApproval(ctx context.Context, orgID, approvalID string) (store.Approval, error)
	ListApprovals(ctx context.Context, orgID, status string) ([]store.Approval, error)
	DecideApproval(ctx context.Context, orgID, approvalID, reviewerID, status, comment, postStatus string) error

	InsertQueueItem(ctx context.Context, item store.QueueItem) error
	GetQueueItem(ctx context.Context, orgID, itemID string) (store.QueueItem, error)
	GetQueueItemByJob(ctx context.Context, orgID, jobID string) (store.QueueItem, error)
	ListQueue(ctx context.Context, orgID, status string, limit int) ([]store.QueueItem, error)
	SetQueueStatus(ctx context.Context, orgID, itemID, status string) error
	MarkQueueGenerating(ctx context.Context, orgID, itemID, jobID string) error
	UpdateQueueProgress(ctx context.Context, orgID, itemID string, progress int) error
	CompleteQueueItem(ctx context.Context, orgID, itemID, postID string, result []byte) error
	FailQueueItem(ctx context.Context, orgID, itemID, message string) error

	ListKeywordResearch(ctx context.Context, orgID string, limit int) ([]store.KeywordResearch, error)
	GetKeywordResearch(ctx context.Context, orgID, researchID string) (store.KeywordResearch, error)
	DeleteKeywordResearch(ctx context.Context, orgID, researchID string) error
}

// refreshStore is backed by Redis when configured, otherwise by Postgres.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type contentGenerator interface {
	Generate(ctx context.Context, req blogwriter.GenerateRequest) (json.RawMessage, error)
	GenerateAsync(ctx context.Context, req blogwriter.GenerateRequest) (blogwriter.AsyncJob, error)
	JobStatus(ctx context.Context, jobID string) (blogwriter.JobStatus, error)
	OpenStream(ctx context.Context, path string, payload any) (*http.Response, error)
}

type jobCache interface {
	Get(ctx context.Context, jobID string) ([]byte, bool, error)
	Set(ctx context.Context, jobID string, snapshot []byte) error
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendInviteEmail(to, inviterName, orgName, acceptURL string) error
	SendApprovalRequest(to, requesterName, postTitle, reviewURL string) error
	SendApprovalDecision(to, postTitle, status, reviewerName, comment, postURL string) error
}

type revisionStore interface {
	Commit(postID string, snapshot gitrepo.Snapshot, author, message string) (store.CommitInfo, error)
	History(postID string, limit int) ([]store.CommitInfo, error)
	Revision(postID, hash string) (gitrepo.Snapshot, store.CommitInfo, error)
	Remove(postID string) error
}

type postSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexPost(post store.BlogPost)
	DeletePost(id string)
}

type postExporter interface {
	Export(ctx context.Context, post store.BlogPost, format export.Format) (*export.Result, error)
}

// Deps collects the collaborators of Service. Generator, JobCache, Search,
// Revisions, Export and Mailer may be nil.
type Deps struct {
	Store        dataStore
	Refresh      refreshStore
	Passwords    *authpw.Service
	Keywords     *keywords.Service
	Generator    contentGenerator
	JobCache     jobCache
	Workflow     *workflow.Manager
	MetaTags     *metatags.Generator
	Publisher    *publish.Service
	Integrations *integrations.Service
	Media        *media.Service
	Interlink    *interlink.Service
	Search       postSearch
	Revisions    revisionStore
	Export       postExporter
	Mailer       mailer
}

type Service struct {
	cfg          config.Config
	store        dataStore
	refresh      refreshStore
	passwords    *authpw.Service
	keywords     *keywords.Service
	generator    contentGenerator
	jobs         jobCache
	workflow     *workflow.Manager
	metaTags     *metatags.Generator
	publisher    *publish.Service
	integrations *integrations.Service
	media        *media.Service
	interlink    *interlink.Service
	search       postSearch
	revisions    revisionStore
	export       postExporter
	mailer       mailer
	logger       *zap.Logger
	now          func() time.Time
}

func New(cfg config.Config, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	refresh := deps.Refresh
	if refresh == nil {
		if fallback, ok := deps.Store.(refreshStore); ok {
			refresh = fallback
		}
	}
	return &Service{
		cfg:          cfg,
		store:        deps.Store,
		refresh:      refresh,
		passwords:    deps.Passwords,
		keywords:     deps.Keywords,
		generator:    deps.Generator,
		jobs:         deps.JobCache,
		workflow:     deps.Workflow,
		metaTags:     deps.MetaTags,
		publisher:    deps.Publisher,
		integrations: deps.Integrations,
		media:        deps.Media,
		interlink:    deps.Interlink,
		search:       deps.Search,
		revisions:    deps.Revisions,
		export:       deps.Export,
		mailer:       deps.Mailer,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// scope resolves the organization a request acts on. Only system admins may
// name another organization.
func (s *Service) scope(session Session, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == session.OrganizationID {
		return session.OrganizationID, nil
	}
	if rbac.Normalize(session.Role) != rbac.RoleSystemAdmin {
		return "", errForbidden
	}
	return requested, nil
}

func (s *Service) appURL(path string, query url.Values) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if len(query) == 0 {
		return base + path
	}
	return base + path + "?" + query.Encode()
}

type SignUpResult struct {
	User              store.User         `json:"user"`
	Organization      store.Organization `json:"organization"`
	DevVerification   string             `json:"devVerificationToken,omitempty"`
	VerificationEmail bool               `json:"verificationEmailSent"`
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (SignUpResult, error) {
	resp, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return SignUpResult{}, err
	}
	result := SignUpResult{User: resp.User, Organization: resp.Organization}
	if !s.SMTPConfigured() {
		result.DevVerification = resp.VerificationToken
		return result, nil
	}
	link := s.appURL("/verify-email", url.Values{"token": {resp.VerificationToken}})
	if err := s.mailer.SendVerificationEmail(resp.User.Email, resp.User.DisplayName, link); err != nil {
		s.logger.Warn("send verification email", zap.String("user_id", resp.User.ID), zap.Error(err))
	} else {
		result.VerificationEmail = true
	}
	return result, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) VerifyEmail(ctx context.Context, token, password string) (Session, error) {
	user, err := s.passwords.VerifyEmail(ctx, token, password)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, authpw.ErrAccountDeactivated
	}
	return s.issueSession(ctx, user)
}

// RequestPasswordReset returns the reset token only when it cannot be mailed.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, user, err := s.passwords.RequestPasswordReset(ctx, email)
	if err != nil || token == "" {
		return "", err
	}
	if !s.SMTPConfigured() {
		return token, nil
	}
	link := s.appURL("/reset-password", url.Values{"token": {token}})
	if err := s.mailer.SendPasswordResetEmail(user.Email, user.DisplayName, link); err != nil {
		s.logger.Warn("send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	return s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: password})
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil || user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID()
	claims := auth.NewClaims(user.ID, user.DisplayName, user.Email, user.Role, user.OrganizationID, jti, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:          token,
		RefreshToken:   refresh,
		UserID:         user.ID,
		UserName:       user.DisplayName,
		Email:          user.Email,
		Role:           user.Role,
		OrganizationID: user.OrganizationID,
		JTI:            jti,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// SessionFromToken validates an access token and reloads the user so role
// and organization changes apply immediately.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:          token,
		UserID:         user.ID,
		UserName:       user.DisplayName,
		Email:          user.Email,
		Role:           string(rbac.Normalize(user.Role)),
		OrganizationID: user.OrganizationID,
		JTI:            claims.ID,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) SignOut(ctx context.Context, session Session, refreshToken string) error {
	var errs []error
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			errs = append(errs, err)
		}
	}
	if refreshToken != "" {
		if err := s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type MeResult struct {
	User         store.User         `json:"user"`
	Organization store.Organization `json:"organization"`
	Permissions  []rbac.Action      `json:"permissions"`
}

func (s *Service) Me(ctx context.Context, session Session) (MeResult, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return MeResult{}, err
	}
	org, err := s.store.GetOrganization(ctx, user.OrganizationID)
	if err != nil {
		return MeResult{}, err
	}
	role := rbac.Normalize(user.Role)
	permissions := make([]rbac.Action, 0, 6)
	for _, action := range []rbac.Action{rbac.ActionRead, rbac.ActionWrite, rbac.ActionPublish, rbac.ActionApprove, rbac.ActionManage, rbac.ActionSystem} {
		if rbac.Can(role, action) {
			permissions = append(permissions, action)
		}
	}
	return MeResult{User: user, Organization: org, Permissions: permissions}, nil
}
