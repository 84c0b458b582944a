package app

import (
	"context"
	"io"
	"strings"

	"blogwriter/api/internal/dataforseo"
	"blogwriter/api/internal/integrations"
	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/keywords"
	"blogwriter/api/internal/media"
	"blogwriter/api/internal/search"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/workflow"
)

func (s *Service) ResearchKeywords(ctx context.Context, session Session, orgID string, req keywords.Request) (*keywords.Response, error) {
	return s.keywords.Research(ctx, orgID, session.UserID, req)
}

type SuggestionInput struct {
	Seed     string `json:"seed"`
	Location string `json:"location"`
	Language string `json:"language"`
	Limit    int    `json:"limit"`
}

func (s *Service) KeywordSuggestions(ctx context.Context, input SuggestionInput) ([]dataforseo.KeywordMetric, error) {
	if strings.TrimSpace(input.Seed) == "" {
		return nil, validationError("seed is required")
	}
	return s.keywords.Suggestions(ctx, input.Seed, input.Location, input.Language, input.Limit)
}

func (s *Service) ListKeywordResearch(ctx context.Context, orgID string, limit int) ([]store.KeywordResearch, error) {
	return s.store.ListKeywordResearch(ctx, orgID, limit)
}

func (s *Service) GetKeywordResearch(ctx context.Context, orgID, researchID string) (store.KeywordResearch, error) {
	return s.store.GetKeywordResearch(ctx, orgID, researchID)
}

func (s *Service) DeleteKeywordResearch(ctx context.Context, orgID, researchID string) error {
	return s.store.DeleteKeywordResearch(ctx, orgID, researchID)
}

// RunWorkflowPhase executes one authoring phase and records the resulting
// post as a revision.
func (s *Service) RunWorkflowPhase(ctx context.Context, session Session, orgID, postID, phase string, body []byte) (workflow.Result, error) {
	result, err := s.workflow.Run(ctx, orgID, postID, phase, body)
	if err != nil {
		return workflow.Result{}, err
	}
	s.afterSave(result.Post, session.UserName, "Workflow: "+phase)
	return result, nil
}

func (s *Service) PublishPost(ctx context.Context, orgID, postID, integrationID string, draft bool) (store.PublishRecord, error) {
	record, err := s.publisher.PublishPost(ctx, orgID, postID, integrationID, draft)
	if err != nil {
		return record, err
	}
	if s.search != nil {
		if post, err := s.store.GetPost(ctx, orgID, postID); err == nil {
			s.search.IndexPost(post)
		}
	}
	return record, nil
}

func (s *Service) ListPublishing(ctx context.Context, orgID, postID string) ([]store.PublishRecord, error) {
	if _, err := s.store.GetPost(ctx, orgID, postID); err != nil {
		return nil, err
	}
	return s.publisher.ListPublishing(ctx, orgID, postID)
}

func (s *Service) ListIntegrations(ctx context.Context, orgID string) ([]store.Integration, error) {
	return s.integrations.List(ctx, orgID)
}

func (s *Service) CreateIntegration(ctx context.Context, orgID string, input integrations.Input) (store.Integration, error) {
	return s.integrations.Create(ctx, orgID, input)
}

func (s *Service) UpdateIntegration(ctx context.Context, orgID, integrationID string, input integrations.Input) (store.Integration, error) {
	return s.integrations.Update(ctx, orgID, integrationID, input)
}

func (s *Service) DeleteIntegration(ctx context.Context, orgID, integrationID string) error {
	return s.integrations.Delete(ctx, orgID, integrationID)
}

func (s *Service) SetDefaultIntegration(ctx context.Context, orgID, integrationID string) (store.Integration, error) {
	return s.integrations.SetDefault(ctx, orgID, integrationID)
}

func (s *Service) TestIntegration(ctx context.Context, orgID, integrationID string) (integrations.TestResult, error) {
	return s.integrations.Test(ctx, orgID, integrationID)
}

func (s *Service) MediaEnabled() bool {
	return s.media != nil && s.media.Enabled()
}

func (s *Service) UploadMedia(ctx context.Context, session Session, orgID, fileName string, body io.Reader) (store.MediaAsset, error) {
	if !s.MediaEnabled() {
		return store.MediaAsset{}, media.ErrProviderDisabled
	}
	return s.media.Upload(ctx, orgID, session.UserID, fileName, body)
}

func (s *Service) ListMedia(ctx context.Context, orgID string, limit int) ([]store.MediaAsset, error) {
	if s.media == nil {
		return []store.MediaAsset{}, nil
	}
	return s.media.List(ctx, orgID, limit)
}

func (s *Service) RemoteMedia(ctx context.Context, orgID string, limit int) ([]media.Asset, error) {
	if !s.MediaEnabled() {
		return nil, media.ErrProviderDisabled
	}
	return s.media.Remote(ctx, orgID, limit)
}

func (s *Service) DeleteMedia(ctx context.Context, orgID, assetID string) error {
	if s.media == nil {
		return media.ErrProviderDisabled
	}
	return s.media.Delete(ctx, orgID, assetID)
}

func (s *Service) AnalyzeLinks(ctx context.Context, orgID string) (interlink.Analysis, error) {
	return s.interlink.Rebuild(ctx, orgID)
}

func (s *Service) ContentClusters(ctx context.Context, orgID string) ([]store.ContentCluster, error) {
	return s.interlink.Clusters(ctx, orgID)
}

func (s *Service) LinkGraph(ctx context.Context, orgID string) ([]store.InternalLink, error) {
	return s.interlink.Graph(ctx, orgID)
}

func (s *Service) LinkOpportunities(ctx context.Context, orgID, postID string, limit int) ([]interlink.Opportunity, error) {
	return s.interlink.Opportunities(ctx, orgID, postID, limit)
}

func (s *Service) RecordLink(ctx context.Context, orgID string, input interlink.LinkInput) (store.InternalLink, error) {
	return s.interlink.RecordLink(ctx, orgID, input)
}

// Search always filters by the caller's organization.
func (s *Service) Search(ctx context.Context, orgID string, q search.Query) search.Response {
	q.OrganizationID = orgID
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}
