package search

import (
	"context"
	"fmt"

	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

const (
	EngineMeili = "meilisearch"
	EnginePG    = "postgres"
)

// PostLoader supplies every indexable post for a full reindex.
type PostLoader interface {
	ListPostsForIndex(ctx context.Context) ([]store.BlogPost, error)
}

// Service tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	posts  PostLoader
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, posts PostLoader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, posts: posts, logger: logger}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EngineMeili}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text, Engine: EnginePG}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EnginePG}
}

// Record converts a post into its index document.
func Record(post store.BlogPost) PostRecord {
	return PostRecord{
		ID:             post.ID,
		OrganizationID: post.OrganizationID,
		Title:          post.Title,
		Slug:           post.Slug,
		Excerpt:        post.Excerpt,
		Content:        util.StripMarkup(post.Content),
		Keywords:       post.Keywords,
		Status:         post.Status,
		UpdatedAt:      unixOrZero(post.UpdatedAt),
	}
}

// IndexPost indexes a post (fire-and-forget to Meilisearch).
func (s *Service) IndexPost(post store.BlogPost) {
	if !s.meiliReady() {
		return
	}
	record := Record(post)
	go func() {
		if err := s.meili.IndexPosts([]PostRecord{record}); err != nil {
			s.logger.Warn("index post", zap.String("post_id", record.ID), zap.Error(err))
		}
	}()
}

// DeletePost removes a post from the index (fire-and-forget).
func (s *Service) DeletePost(id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeletePost(id); err != nil {
			s.logger.Warn("delete post from index", zap.String("post_id", id), zap.Error(err))
		}
	}()
}

// Reindex pushes every non-archived post into Meilisearch. It is a no-op
// returning zero when Meilisearch is not available.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if !s.meiliReady() || s.posts == nil {
		return 0, nil
	}
	posts, err := s.posts.ListPostsForIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("load posts for index: %w", err)
	}
	records := make([]PostRecord, len(posts))
	for i, post := range posts {
		records[i] = Record(post)
	}
	if err := s.meili.IndexPosts(records); err != nil {
		return 0, fmt.Errorf("index posts: %w", err)
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
