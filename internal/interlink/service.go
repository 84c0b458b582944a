package interlink

import (
	"context"
	"fmt"
	"strings"

	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

type Store interface {
	GetPost(ctx context.Context, orgID, postID string) (store.BlogPost, error)
	ListAllPosts(ctx context.Context, orgID string) ([]store.BlogPost, error)
	ReplaceClusters(ctx context.Context, orgID string, clusters []store.ContentCluster) error
	ListClusters(ctx context.Context, orgID string) ([]store.ContentCluster, error)
	ListLinks(ctx context.Context, orgID string) ([]store.InternalLink, error)
	UpsertLink(ctx context.Context, link store.InternalLink) (string, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(st Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func pageFromPost(post store.BlogPost) Page {
	return Page{
		ID:       post.ID,
		Title:    post.Title,
		URL:      post.PublishedURL,
		Status:   post.Status,
		Keywords: post.Keywords,
		Content:  util.StripMarkup(post.Content),
	}
}

func (s *Service) pages(ctx context.Context, orgID string) ([]Page, error) {
	posts, err := s.store.ListAllPosts(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	pages := make([]Page, 0, len(posts))
	for _, post := range posts {
		if post.Status == store.PostStatusArchived {
			continue
		}
		pages = append(pages, pageFromPost(post))
	}
	return pages, nil
}

// Rebuild re-analyzes every post in the organization and replaces its stored
// clusters.
func (s *Service) Rebuild(ctx context.Context, orgID string) (Analysis, error) {
	pages, err := s.pages(ctx, orgID)
	if err != nil {
		return Analysis{}, err
	}
	analysis := AnalyzeClusters(pages)

	rows := make([]store.ContentCluster, 0, len(analysis.Clusters))
	for i, cluster := range analysis.Clusters {
		id := util.NewID()
		analysis.Clusters[i].ID = id
		rows = append(rows, store.ContentCluster{
			ID:             id,
			OrganizationID: orgID,
			Name:           cluster.Name,
			PillarPostID:   cluster.PillarID,
			TopicTerms:     cluster.TopicTerms,
			PostIDs:        cluster.PageIDs,
			Coherence:      cluster.Coherence,
		})
	}
	if err := s.store.ReplaceClusters(ctx, orgID, rows); err != nil {
		return Analysis{}, fmt.Errorf("replace clusters: %w", err)
	}
	s.logger.Info("content clusters rebuilt",
		zap.String("org_id", orgID),
		zap.Int("pages", len(pages)),
		zap.Int("clusters", len(rows)))
	return analysis, nil
}

func (s *Service) Clusters(ctx context.Context, orgID string) ([]store.ContentCluster, error) {
	return s.store.ListClusters(ctx, orgID)
}

func (s *Service) Graph(ctx context.Context, orgID string) ([]store.InternalLink, error) {
	return s.store.ListLinks(ctx, orgID)
}

func storedClusters(rows []store.ContentCluster) []Cluster {
	clusters := make([]Cluster, len(rows))
	for i, row := range rows {
		clusters[i] = Cluster{
			ID:         row.ID,
			Name:       row.Name,
			PillarID:   row.PillarPostID,
			TopicTerms: row.TopicTerms,
			PageIDs:    row.PostIDs,
			Coherence:  row.Coherence,
		}
	}
	return clusters
}

// Opportunities scores link targets for one post against the stored clusters.
// Targets already present in the link graph for this source are skipped.
func (s *Service) Opportunities(ctx context.Context, orgID, postID string, limit int) ([]Opportunity, error) {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return nil, err
	}
	return s.OpportunitiesFor(ctx, orgID, post, limit)
}

// OpportunitiesFor is Opportunities for a post already loaded by the caller,
// which may hold unsaved edits.
func (s *Service) OpportunitiesFor(ctx context.Context, orgID string, post store.BlogPost, limit int) ([]Opportunity, error) {
	pages, err := s.pages(ctx, orgID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListClusters(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	links, err := s.store.ListLinks(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	existing := make(map[string]bool)
	for _, link := range links {
		if link.SourcePostID == post.ID && link.Status != store.LinkRejected {
			existing[link.TargetPostID] = true
		}
	}
	return FindOpportunities(pageFromPost(post), pages, storedClusters(rows), existing, limit), nil
}

type LinkInput struct {
	SourcePostID string `json:"sourcePostId"`
	TargetPostID string `json:"targetPostId"`
	AnchorText   string `json:"anchorText"`
	Score        int    `json:"score"`
	Status       string `json:"status"`
}

func (s *Service) RecordLink(ctx context.Context, orgID string, input LinkInput) (store.InternalLink, error) {
	input.SourcePostID = strings.TrimSpace(input.SourcePostID)
	input.TargetPostID = strings.TrimSpace(input.TargetPostID)
	if input.SourcePostID == "" || input.TargetPostID == "" {
		return store.InternalLink{}, &ValidationError{Message: "sourcePostId and targetPostId are required"}
	}
	if input.SourcePostID == input.TargetPostID {
		return store.InternalLink{}, &ValidationError{Message: "a post cannot link to itself"}
	}
	if input.Status == "" {
		input.Status = store.LinkSuggested
	}
	switch input.Status {
	case store.LinkSuggested, store.LinkAccepted, store.LinkRejected:
	default:
		return store.InternalLink{}, &ValidationError{Message: "status must be suggested, accepted or rejected"}
	}
	for _, id := range []string{input.SourcePostID, input.TargetPostID} {
		if _, err := s.store.GetPost(ctx, orgID, id); err != nil {
			return store.InternalLink{}, err
		}
	}

	link := store.InternalLink{
		ID:             util.NewID(),
		OrganizationID: orgID,
		SourcePostID:   input.SourcePostID,
		TargetPostID:   input.TargetPostID,
		AnchorText:     strings.TrimSpace(input.AnchorText),
		Score:          input.Score,
		Status:         input.Status,
	}
	id, err := s.store.UpsertLink(ctx, link)
	if err != nil {
		return store.InternalLink{}, fmt.Errorf("upsert link: %w", err)
	}
	link.ID = id
	return link, nil
}
