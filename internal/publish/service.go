package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blogwriter/api/internal/metrics"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

var ErrNoIntegration = errors.New("no publishing integration configured")

type Store interface {
	GetPost(ctx context.Context, orgID, postID string) (store.BlogPost, error)
	GetIntegration(ctx context.Context, orgID, integrationID string) (store.Integration, error)
	GetDefaultIntegration(ctx context.Context, orgID string) (store.Integration, error)
	InsertPublishRecord(ctx context.Context, record store.PublishRecord) error
	CompletePublishRecord(ctx context.Context, recordID, externalID, externalURL string, publishedAt time.Time) error
	FailPublishRecord(ctx context.Context, recordID, message string) error
	MarkPostPublished(ctx context.Context, orgID, postID, url string, publishedAt time.Time) error
	ListPublishRecords(ctx context.Context, orgID, postID string) ([]store.PublishRecord, error)
}

// Factory builds a publisher from a stored integration.
type Factory func(provider string, config json.RawMessage) (Publisher, error)

type Service struct {
	store   Store
	factory Factory
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(st Store, factory Factory, logger *zap.Logger) *Service {
	if factory == nil {
		factory = func(provider string, config json.RawMessage) (Publisher, error) {
			return FromIntegration(provider, config, nil)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, factory: factory, logger: logger, now: time.Now}
}

func (s *Service) resolveIntegration(ctx context.Context, orgID, integrationID string) (store.Integration, error) {
	if integrationID != "" {
		return s.store.GetIntegration(ctx, orgID, integrationID)
	}
	integration, err := s.store.GetDefaultIntegration(ctx, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Integration{}, ErrNoIntegration
	}
	return integration, err
}

// PublishPost sends the post to the chosen integration (or the org default)
// and records the attempt. The returned record reflects the final status even
// when the platform call fails.
func (s *Service) PublishPost(ctx context.Context, orgID, postID, integrationID string, draft bool) (store.PublishRecord, error) {
	post, err := s.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return store.PublishRecord{}, err
	}
	integration, err := s.resolveIntegration(ctx, orgID, integrationID)
	if err != nil {
		return store.PublishRecord{}, err
	}
	publisher, err := s.factory(integration.Provider, integration.Config)
	if err != nil {
		return store.PublishRecord{}, err
	}

	record := store.PublishRecord{
		ID:             util.NewID(),
		OrganizationID: orgID,
		PostID:         post.ID,
		IntegrationID:  integration.ID,
		Platform:       publisher.Platform(),
		Status:         store.PublishPublishing,
	}
	if err := s.store.InsertPublishRecord(ctx, record); err != nil {
		return store.PublishRecord{}, fmt.Errorf("insert publish record: %w", err)
	}

	result, err := publisher.Publish(ctx, PublishInput{
		Title:    post.Title,
		Slug:     post.Slug,
		Content:  post.Content,
		Excerpt:  post.Excerpt,
		Tags:     post.Keywords,
		ImageURL: post.FeaturedImageURL,
		Draft:    draft,
	})
	metrics.PublishAttempt(record.Platform, err)
	if err != nil {
		s.logger.Warn("publish failed",
			zap.String("post_id", post.ID),
			zap.String("platform", record.Platform),
			zap.Error(err))
		if failErr := s.store.FailPublishRecord(ctx, record.ID, err.Error()); failErr != nil {
			s.logger.Error("record publish failure", zap.String("record_id", record.ID), zap.Error(failErr))
		}
		record.Status = store.PublishFailed
		record.Error = err.Error()
		return record, err
	}

	publishedAt := s.now().UTC()
	if err := s.store.CompletePublishRecord(ctx, record.ID, result.ExternalID, result.ExternalURL, publishedAt); err != nil {
		return store.PublishRecord{}, fmt.Errorf("complete publish record: %w", err)
	}
	record.Status = store.PublishPublished
	record.ExternalID = result.ExternalID
	record.ExternalURL = result.ExternalURL
	record.PublishedAt = &publishedAt

	if !draft {
		if err := s.store.MarkPostPublished(ctx, orgID, post.ID, result.ExternalURL, publishedAt); err != nil {
			return record, fmt.Errorf("mark post published: %w", err)
		}
	}
	s.logger.Info("post published",
		zap.String("post_id", post.ID),
		zap.String("platform", record.Platform),
		zap.String("external_id", result.ExternalID),
		zap.Bool("draft", draft))
	return record, nil
}

func (s *Service) ListPublishing(ctx context.Context, orgID, postID string) ([]store.PublishRecord, error) {
	if _, err := s.store.GetPost(ctx, orgID, postID); err != nil {
		return nil, err
	}
	return s.store.ListPublishRecords(ctx, orgID, postID)
}
