package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"blogwriter/api/internal/authpw"
	"blogwriter/api/internal/blogwriter"
	"blogwriter/api/internal/config"
	"blogwriter/api/internal/gitrepo"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// fakeStore keeps rows in maps. Function fields override individual calls.
type fakeStore struct {
	mu sync.Mutex

	users     map[string]store.User
	orgs      map[string]store.Organization
	posts     map[string]store.BlogPost
	approvals map[string]store.Approval
	queue     map[string]store.QueueItem
	refresh   map[string]string
	revoked   map[string]bool

	pingFn           func(context.Context) error
	decideApprovalFn func(ctx context.Context, orgID, approvalID, reviewerID, status, comment, postStatus string) error
	setQueueStatusFn func(ctx context.Context, orgID, itemID, status string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]store.User{},
		orgs:      map[string]store.Organization{},
		posts:     map[string]store.BlogPost{},
		approvals: map[string]store.Approval{},
		queue:     map[string]store.QueueItem{},
		refresh:   map[string]string{},
		revoked:   map[string]bool{},
	}
}

func (f *fakeStore) addUser(user store.User) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.OrganizationID == "" {
		user.OrganizationID = "org-1"
	}
	if _, ok := f.orgs[user.OrganizationID]; !ok {
		f.orgs[user.OrganizationID] = store.Organization{ID: user.OrganizationID, Name: "Org " + user.OrganizationID, Slug: user.OrganizationID, Plan: "free"}
	}
	user.IsEmailVerified = true
	f.users[user.ID] = user
	return user
}

func (f *fakeStore) addPost(post store.BlogPost) store.BlogPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.Status == "" {
		post.Status = store.PostStatusDraft
	}
	if post.Metadata == nil {
		post.Metadata = json.RawMessage(`{}`)
	}
	f.posts[post.ID] = post
	return post
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetOrgUser(_ context.Context, orgID, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok || user.OrganizationID != orgID {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) ListUsers(_ context.Context, orgID string) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.User{}
	for _, user := range f.users {
		if user.OrganizationID == orgID {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListActiveUsersByRole(ctx context.Context, orgID string, roles []string) ([]store.User, error) {
	users, _ := f.ListUsers(ctx, orgID)
	out := []store.User{}
	for _, user := range users {
		for _, role := range roles {
			if user.Role == role && user.DeactivatedAt == nil {
				out = append(out, user)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, orgID, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok || user.OrganizationID != orgID {
		return sql.ErrNoRows
	}
	user.Role = role
	f.users[userID] = user
	return nil
}

func (f *fakeStore) DeactivateUser(_ context.Context, orgID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok || user.OrganizationID != orgID {
		return sql.ErrNoRows
	}
	now := time.Now()
	user.DeactivatedAt = &now
	f.users[userID] = user
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) InsertOrganization(_ context.Context, org store.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orgs {
		if existing.Slug == org.Slug {
			return store.ErrConflict
		}
	}
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeStore) GetOrganization(_ context.Context, orgID string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[orgID]
	if !ok {
		return store.Organization{}, sql.ErrNoRows
	}
	return org, nil
}

func (f *fakeStore) ListOrganizations(context.Context) ([]store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Organization{}
	for _, org := range f.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateOrganization(_ context.Context, org store.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[org.ID]; !ok {
		return sql.ErrNoRows
	}
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeStore) DeleteOrganization(_ context.Context, orgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[orgID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.orgs, orgID)
	return nil
}

func (f *fakeStore) InsertPost(_ context.Context, post store.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.posts {
		if existing.OrganizationID == post.OrganizationID && existing.Slug == post.Slug {
			return store.ErrConflict
		}
	}
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) GetPost(_ context.Context, orgID, postID string) (store.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok || post.OrganizationID != orgID {
		return store.BlogPost{}, sql.ErrNoRows
	}
	return post, nil
}

func (f *fakeStore) ListPosts(_ context.Context, orgID string, filter store.PostFilter) ([]store.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.BlogPost{}
	for _, post := range f.posts {
		if post.OrganizationID != orgID {
			continue
		}
		if filter.Status != "" && post.Status != filter.Status {
			continue
		}
		out = append(out, post)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdatePost(_ context.Context, post store.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.posts[post.ID]
	if !ok || existing.OrganizationID != post.OrganizationID {
		return sql.ErrNoRows
	}
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) DeletePost(_ context.Context, orgID, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok || post.OrganizationID != orgID {
		return sql.ErrNoRows
	}
	delete(f.posts, postID)
	return nil
}

func (f *fakeStore) RequestApproval(_ context.Context, approval store.Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[approval.PostID]
	if !ok {
		return sql.ErrNoRows
	}
	post.Status = store.PostStatusInReview
	f.posts[post.ID] = post
	f.approvals[approval.ID] = approval
	return nil
}

func (f *fakeStore) GetApproval(_ context.Context, orgID, approvalID string) (store.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	approval, ok := f.approvals[approvalID]
	if !ok || approval.OrganizationID != orgID {
		return store.Approval{}, sql.ErrNoRows
	}
	return approval, nil
}

func (f *fakeStore) ListApprovals(_ context.Context, orgID, status string) ([]store.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Approval{}
	for _, approval := range f.approvals {
		if approval.OrganizationID == orgID && (status == "" || approval.Status == status) {
			out = append(out, approval)
		}
	}
	return out, nil
}

func (f *fakeStore) DecideApproval(ctx context.Context, orgID, approvalID, reviewerID, status, comment, postStatus string) error {
	if f.decideApprovalFn != nil {
		if err := f.decideApprovalFn(ctx, orgID, approvalID, reviewerID, status, comment, postStatus); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	approval, ok := f.approvals[approvalID]
	if !ok || approval.OrganizationID != orgID {
		return sql.ErrNoRows
	}
	now := time.Now()
	approval.Status = status
	approval.ReviewerID = reviewerID
	approval.Comment = comment
	approval.DecidedAt = &now
	f.approvals[approvalID] = approval
	if post, ok := f.posts[approval.PostID]; ok {
		post.Status = postStatus
		f.posts[post.ID] = post
	}
	return nil
}

func (f *fakeStore) InsertQueueItem(_ context.Context, item store.QueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	f.queue[item.ID] = item
	return nil
}

func (f *fakeStore) GetQueueItem(_ context.Context, orgID, itemID string) (store.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.queue[itemID]
	if !ok || item.OrganizationID != orgID {
		return store.QueueItem{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) GetQueueItemByJob(_ context.Context, orgID, jobID string) (store.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.queue {
		if item.OrganizationID == orgID && item.JobID == jobID {
			return item, nil
		}
	}
	return store.QueueItem{}, sql.ErrNoRows
}

func (f *fakeStore) ListQueue(_ context.Context, orgID, status string, _ int) ([]store.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.QueueItem{}
	for _, item := range f.queue {
		if item.OrganizationID == orgID && (status == "" || item.Status == status) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) updateQueue(orgID, itemID string, apply func(*store.QueueItem)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.queue[itemID]
	if !ok || item.OrganizationID != orgID {
		return sql.ErrNoRows
	}
	apply(&item)
	f.queue[itemID] = item
	return nil
}

func (f *fakeStore) SetQueueStatus(ctx context.Context, orgID, itemID, status string) error {
	if f.setQueueStatusFn != nil {
		return f.setQueueStatusFn(ctx, orgID, itemID, status)
	}
	return f.updateQueue(orgID, itemID, func(item *store.QueueItem) {
		now := time.Now()
		item.Status = status
		if status == store.QueueStatusGenerating {
			item.StartedAt = &now
		}
		if store.QueueTerminal[status] {
			item.CompletedAt = &now
		}
	})
}

func (f *fakeStore) MarkQueueGenerating(_ context.Context, orgID, itemID, jobID string) error {
	return f.updateQueue(orgID, itemID, func(item *store.QueueItem) {
		now := time.Now()
		item.Status = store.QueueStatusGenerating
		item.JobID = jobID
		item.StartedAt = &now
	})
}

func (f *fakeStore) UpdateQueueProgress(_ context.Context, orgID, itemID string, progress int) error {
	return f.updateQueue(orgID, itemID, func(item *store.QueueItem) {
		item.Progress = progress
	})
}

func (f *fakeStore) CompleteQueueItem(_ context.Context, orgID, itemID, postID string, result []byte) error {
	return f.updateQueue(orgID, itemID, func(item *store.QueueItem) {
		now := time.Now()
		item.Status = store.QueueStatusGenerated
		item.Progress = 100
		item.PostID = postID
		item.Result = result
		item.CompletedAt = &now
	})
}

func (f *fakeStore) FailQueueItem(_ context.Context, orgID, itemID, message string) error {
	return f.updateQueue(orgID, itemID, func(item *store.QueueItem) {
		now := time.Now()
		item.Status = store.QueueStatusFailed
		item.Error = message
		item.CompletedAt = &now
	})
}

func (f *fakeStore) ListKeywordResearch(context.Context, string, int) ([]store.KeywordResearch, error) {
	return []store.KeywordResearch{}, nil
}

func (f *fakeStore) GetKeywordResearch(context.Context, string, string) (store.KeywordResearch, error) {
	return store.KeywordResearch{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteKeywordResearch(context.Context, string, string) error {
	return sql.ErrNoRows
}

// authpw.UserStore

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByVerificationToken(_ context.Context, token string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if token != "" && user.VerificationToken == token {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) CreateOrganizationWithOwner(_ context.Context, org store.Organization, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgs[org.ID] = org
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error { return nil }

func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}

func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

type fakeGenerator struct {
	generateFn      func(context.Context, blogwriter.GenerateRequest) (json.RawMessage, error)
	generateAsyncFn func(context.Context, blogwriter.GenerateRequest) (blogwriter.AsyncJob, error)
	jobStatusFn     func(context.Context, string) (blogwriter.JobStatus, error)
	openStreamFn    func(context.Context, string, any) (*http.Response, error)
	jobStatusCalls  int
}

func (g *fakeGenerator) Generate(ctx context.Context, req blogwriter.GenerateRequest) (json.RawMessage, error) {
	return g.generateFn(ctx, req)
}

func (g *fakeGenerator) GenerateAsync(ctx context.Context, req blogwriter.GenerateRequest) (blogwriter.AsyncJob, error) {
	return g.generateAsyncFn(ctx, req)
}

func (g *fakeGenerator) JobStatus(ctx context.Context, jobID string) (blogwriter.JobStatus, error) {
	g.jobStatusCalls++
	return g.jobStatusFn(ctx, jobID)
}

func (g *fakeGenerator) OpenStream(ctx context.Context, path string, payload any) (*http.Response, error) {
	return g.openStreamFn(ctx, path, payload)
}

type memoryJobCache struct {
	entries map[string][]byte
}

func (c *memoryJobCache) Get(_ context.Context, jobID string) ([]byte, bool, error) {
	raw, ok := c.entries[jobID]
	return raw, ok, nil
}

func (c *memoryJobCache) Set(_ context.Context, jobID string, snapshot []byte) error {
	c.entries[jobID] = snapshot
	return nil
}

type fakeRevisions struct {
	commits []string
	removed []string
}

func (r *fakeRevisions) Commit(postID string, _ gitrepo.Snapshot, _, message string) (store.CommitInfo, error) {
	r.commits = append(r.commits, postID+":"+message)
	return store.CommitInfo{}, nil
}

func (r *fakeRevisions) History(string, int) ([]store.CommitInfo, error) {
	return []store.CommitInfo{}, nil
}

func (r *fakeRevisions) Revision(string, string) (gitrepo.Snapshot, store.CommitInfo, error) {
	return gitrepo.Snapshot{}, store.CommitInfo{}, gitrepo.ErrRevisionNotFound
}

func (r *fakeRevisions) Remove(postID string) error {
	r.removed = append(r.removed, postID)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		SessionCookie:  "sb-access-token",
		CORSOrigin:     "*",
		PublicURL:      "http://app.test",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
}

func newTestService(fs *fakeStore, mutate func(*Deps)) *Service {
	deps := Deps{
		Store:     fs,
		Passwords: authpw.NewService(fs).WithCost(bcrypt.MinCost),
		MetaTags:  metatags.NewGenerator(nil, nil),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(testConfig(), deps, nil)
}

// tokenFor issues an access token for user through the normal session path.
func tokenFor(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}
