package store

import (
	"encoding/json"
	"time"
)

const (
	PostStatusDraft     = "draft"
	PostStatusInReview  = "in_review"
	PostStatusApproved  = "approved"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusArchived  = "archived"
)

const (
	QueueStatusQueued     = "queued"
	QueueStatusGenerating = "generating"
	QueueStatusGenerated  = "generated"
	QueueStatusInReview   = "in_review"
	QueueStatusApproved   = "approved"
	QueueStatusScheduled  = "scheduled"
	QueueStatusPublishing = "publishing"
	QueueStatusPublished  = "published"
	QueueStatusFailed     = "failed"
	QueueStatusCancelled  = "cancelled"
)

const (
	ApprovalPending          = "pending"
	ApprovalApproved         = "approved"
	ApprovalRejected         = "rejected"
	ApprovalChangesRequested = "changes_requested"
)

const (
	PublishPending    = "pending"
	PublishPublishing = "publishing"
	PublishPublished  = "published"
	PublishFailed     = "failed"
)

const (
	LinkSuggested = "suggested"
	LinkAccepted  = "accepted"
	LinkRejected  = "rejected"
)

var PostStatuses = []string{PostStatusDraft, PostStatusInReview, PostStatusApproved, PostStatusScheduled, PostStatusPublished, PostStatusArchived}

var QueueStatuses = []string{
	QueueStatusQueued, QueueStatusGenerating, QueueStatusGenerated, QueueStatusInReview, QueueStatusApproved,
	QueueStatusScheduled, QueueStatusPublishing, QueueStatusPublished, QueueStatusFailed, QueueStatusCancelled,
}

// QueueTerminal lists queue statuses after which the item no longer changes on its own.
var QueueTerminal = map[string]bool{
	QueueStatusGenerated: true,
	QueueStatusPublished: true,
	QueueStatusFailed:    true,
	QueueStatusCancelled: true,
}

type Organization struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Plan      string          `json:"plan"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type User struct {
	ID                    string     `json:"id"`
	OrganizationID        string     `json:"organizationId"`
	Email                 string     `json:"email"`
	DisplayName           string     `json:"displayName"`
	Role                  string     `json:"role"`
	PasswordHash          string     `json:"-"`
	IsEmailVerified       bool       `json:"isEmailVerified"`
	VerificationToken     string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	DeactivatedAt         *time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

type BlogPost struct {
	ID               string          `json:"id"`
	OrganizationID   string          `json:"organizationId"`
	CreatedBy        string          `json:"createdBy"`
	Title            string          `json:"title"`
	Slug             string          `json:"slug"`
	Content          string          `json:"content"`
	Excerpt          string          `json:"excerpt"`
	Status           string          `json:"status"`
	Keywords         []string        `json:"keywords"`
	Metadata         json.RawMessage `json:"metadata"`
	SEOScore         int             `json:"seoScore"`
	WordCount        int             `json:"wordCount"`
	FeaturedImageURL string          `json:"featuredImageUrl"`
	PublishedURL     string          `json:"publishedUrl"`
	PublishedAt      *time.Time      `json:"publishedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type PostFilter struct {
	Status string
	Limit  int
	Offset int
}

type KeywordCacheKey struct {
	Keyword    string
	Location   string
	Language   string
	SearchType string
}

type KeywordCacheEntry struct {
	KeywordCacheKey
	Data      json.RawMessage
	ExpiresAt time.Time
	UpdatedAt time.Time
}

type KeywordResearch struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	CreatedBy      string          `json:"createdBy"`
	Name           string          `json:"name"`
	SeedKeywords   []string        `json:"seedKeywords"`
	Location       string          `json:"location"`
	Language       string          `json:"language"`
	SearchType     string          `json:"searchType"`
	Summary        json.RawMessage `json:"summary"`
	CreatedAt      time.Time       `json:"createdAt"`
	Terms          []KeywordTerm   `json:"terms,omitempty"`
}

type KeywordTerm struct {
	ID               string          `json:"id"`
	ResearchID       string          `json:"researchId"`
	OrganizationID   string          `json:"organizationId"`
	Keyword          string          `json:"keyword"`
	SearchVolume     int64           `json:"searchVolume"`
	CPC              float64         `json:"cpc"`
	Competition      float64         `json:"competition"`
	CompetitionIndex int             `json:"competitionIndex"`
	Difficulty       int             `json:"difficulty"`
	SearchIntent     string          `json:"searchIntent"`
	Trend            json.RawMessage `json:"trend"`
}

type QueueItem struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	CreatedBy      string          `json:"createdBy"`
	PostID         string          `json:"postId"`
	Topic          string          `json:"topic"`
	Keywords       []string        `json:"keywords"`
	Status         string          `json:"status"`
	JobID          string          `json:"jobId"`
	Progress       int             `json:"progress"`
	Request        json.RawMessage `json:"request"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type Approval struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	PostID         string     `json:"postId"`
	PostTitle      string     `json:"postTitle"`
	RequestedBy    string     `json:"requestedBy"`
	ReviewerID     string     `json:"reviewerId"`
	Status         string     `json:"status"`
	Comment        string     `json:"comment"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type Integration struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	Provider       string          `json:"provider"`
	Name           string          `json:"name"`
	Config         json.RawMessage `json:"config"`
	IsDefault      bool            `json:"isDefault"`
	Status         string          `json:"status"`
	LastTestedAt   *time.Time      `json:"lastTestedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type PublishRecord struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	PostID         string     `json:"postId"`
	IntegrationID  string     `json:"integrationId"`
	Platform       string     `json:"platform"`
	Status         string     `json:"status"`
	ExternalID     string     `json:"externalId"`
	ExternalURL    string     `json:"externalUrl"`
	Error          string     `json:"error"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type MediaAsset struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	UploadedBy     string    `json:"uploadedBy"`
	Provider       string    `json:"provider"`
	PublicID       string    `json:"publicId"`
	URL            string    `json:"url"`
	FileName       string    `json:"fileName"`
	MimeType       string    `json:"mimeType"`
	Bytes          int64     `json:"bytes"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Folder         string    `json:"folder"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ContentCluster struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	PillarPostID   string    `json:"pillarPostId"`
	TopicTerms     []string  `json:"topicTerms"`
	PostIDs        []string  `json:"postIds"`
	Coherence      float64   `json:"coherence"`
	CreatedAt      time.Time `json:"createdAt"`
}

type InternalLink struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	SourcePostID   string    `json:"sourcePostId"`
	TargetPostID   string    `json:"targetPostId"`
	AnchorText     string    `json:"anchorText"`
	Score          int       `json:"score"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CommitInfo describes one revision in a post's history repository.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
