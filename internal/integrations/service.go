// Package integrations manages an organization's CMS connections.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"blogwriter/api/internal/publish"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

const (
	StatusConnected = "connected"
	StatusError     = "error"
)

type Store interface {
	ListIntegrations(ctx context.Context, orgID string) ([]store.Integration, error)
	GetIntegration(ctx context.Context, orgID, integrationID string) (store.Integration, error)
	InsertIntegration(ctx context.Context, item store.Integration) error
	UpdateIntegration(ctx context.Context, item store.Integration) error
	DeleteIntegration(ctx context.Context, orgID, integrationID string) error
	SetDefaultIntegration(ctx context.Context, orgID, integrationID string) error
	RecordIntegrationTest(ctx context.Context, orgID, integrationID, status string, testedAt time.Time) error
}

type Input struct {
	Provider  string          `json:"provider"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	IsDefault bool            `json:"isDefault"`
}

type TestResult struct {
	Integration store.Integration `json:"integration"`
	Connected   bool              `json:"connected"`
	Error       string            `json:"error,omitempty"`
}

type Service struct {
	store   Store
	factory publish.Factory
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(st Store, factory publish.Factory, logger *zap.Logger) *Service {
	if factory == nil {
		factory = func(provider string, config json.RawMessage) (publish.Publisher, error) {
			return publish.FromIntegration(provider, config, nil)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, factory: factory, logger: logger, now: time.Now}
}

func redacted(item store.Integration) store.Integration {
	item.Config = publish.Redact(item.Config)
	return item
}

func (s *Service) List(ctx context.Context, orgID string) ([]store.Integration, error) {
	items, err := s.store.ListIntegrations(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = redacted(items[i])
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, orgID string, input Input) (store.Integration, error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	config, err := publish.ValidateConfig(provider, input.Config)
	if err != nil {
		return store.Integration{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = provider
	}

	item := store.Integration{
		ID:             util.NewID(),
		OrganizationID: orgID,
		Provider:       provider,
		Name:           name,
		Config:         config,
		Status:         "untested",
	}
	if err := s.store.InsertIntegration(ctx, item); err != nil {
		return store.Integration{}, err
	}
	if input.IsDefault {
		if err := s.store.SetDefaultIntegration(ctx, orgID, item.ID); err != nil {
			return store.Integration{}, err
		}
		item.IsDefault = true
	}
	return s.get(ctx, orgID, item.ID)
}

// Update renames an integration and overlays its config. Masked secrets sent
// back by clients keep their stored values.
func (s *Service) Update(ctx context.Context, orgID, integrationID string, input Input) (store.Integration, error) {
	item, err := s.store.GetIntegration(ctx, orgID, integrationID)
	if err != nil {
		return store.Integration{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		item.Name = name
	}
	if len(input.Config) > 0 {
		merged, err := publish.MergeConfig(item.Config, input.Config)
		if err != nil {
			return store.Integration{}, err
		}
		config, err := publish.ValidateConfig(item.Provider, merged)
		if err != nil {
			return store.Integration{}, err
		}
		item.Config = config
	}
	if err := s.store.UpdateIntegration(ctx, item); err != nil {
		return store.Integration{}, err
	}
	if input.IsDefault && !item.IsDefault {
		if err := s.store.SetDefaultIntegration(ctx, orgID, item.ID); err != nil {
			return store.Integration{}, err
		}
	}
	return s.get(ctx, orgID, item.ID)
}

func (s *Service) Delete(ctx context.Context, orgID, integrationID string) error {
	return s.store.DeleteIntegration(ctx, orgID, integrationID)
}

func (s *Service) SetDefault(ctx context.Context, orgID, integrationID string) (store.Integration, error) {
	if err := s.store.SetDefaultIntegration(ctx, orgID, integrationID); err != nil {
		return store.Integration{}, err
	}
	return s.get(ctx, orgID, integrationID)
}

// Test calls the platform and stores the outcome. A failed connection is not
// an error of the call itself.
func (s *Service) Test(ctx context.Context, orgID, integrationID string) (TestResult, error) {
	item, err := s.store.GetIntegration(ctx, orgID, integrationID)
	if err != nil {
		return TestResult{}, err
	}
	publisher, err := s.factory(item.Provider, item.Config)
	if err != nil {
		return TestResult{}, err
	}

	result := TestResult{Connected: true}
	status := StatusConnected
	if testErr := publisher.Test(ctx); testErr != nil {
		s.logger.Warn("integration test failed",
			zap.String("integration_id", item.ID),
			zap.String("provider", item.Provider),
			zap.Error(testErr))
		status = StatusError
		result.Connected = false
		result.Error = testErr.Error()
	}
	if err := s.store.RecordIntegrationTest(ctx, orgID, item.ID, status, s.now().UTC()); err != nil {
		return TestResult{}, fmt.Errorf("record integration test: %w", err)
	}
	result.Integration, err = s.get(ctx, orgID, item.ID)
	if err != nil {
		return TestResult{}, err
	}
	return result, nil
}

func (s *Service) get(ctx context.Context, orgID, integrationID string) (store.Integration, error) {
	item, err := s.store.GetIntegration(ctx, orgID, integrationID)
	if err != nil {
		return store.Integration{}, err
	}
	return redacted(item), nil
}
