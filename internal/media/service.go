package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

const MaxUploadBytes = 10 << 20

var (
	ErrProviderDisabled = errors.New("media provider is not configured")
	ErrTooLarge         = errors.New("file exceeds the 10 MiB upload limit")
	ErrUnsupportedType  = errors.New("only image and video uploads are allowed")
	ErrEmptyFile        = errors.New("file is empty")
)

type Store interface {
	InsertMediaAsset(ctx context.Context, item store.MediaAsset) error
	GetMediaAsset(ctx context.Context, orgID, assetID string) (store.MediaAsset, error)
	ListMediaAssets(ctx context.Context, orgID string, limit int) ([]store.MediaAsset, error)
	DeleteMediaAsset(ctx context.Context, orgID, assetID string) error
}

type Service struct {
	store    Store
	provider Provider
	logger   *zap.Logger
}

// NewService accepts a nil provider; uploads and deletes then fail with
// ErrProviderDisabled.
func NewService(st Store, provider Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, provider: provider, logger: logger}
}

func (s *Service) Enabled() bool {
	return s.provider != nil
}

// Upload reads at most MaxUploadBytes from body, sniffs its type and stores it
// with the configured provider.
func (s *Service) Upload(ctx context.Context, orgID, userID, fileName string, body io.Reader) (store.MediaAsset, error) {
	if s.provider == nil {
		return store.MediaAsset{}, ErrProviderDisabled
	}
	data, err := io.ReadAll(io.LimitReader(body, MaxUploadBytes+1))
	if err != nil {
		return store.MediaAsset{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return store.MediaAsset{}, ErrEmptyFile
	}
	if len(data) > MaxUploadBytes {
		return store.MediaAsset{}, ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		return store.MediaAsset{}, ErrUnsupportedType
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	asset, err := s.provider.Upload(ctx, UploadInput{
		OrganizationID: orgID,
		FileName:       fileName,
		ContentType:    contentType,
		Size:           int64(len(data)),
		Body:           bytes.NewReader(data),
	})
	if err != nil {
		s.logger.Warn("media upload failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		return store.MediaAsset{}, err
	}
	if asset.Width == 0 && strings.HasPrefix(contentType, "image/") {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			asset.Width, asset.Height = cfg.Width, cfg.Height
		}
	}
	if asset.Bytes == 0 {
		asset.Bytes = int64(len(data))
	}

	item := store.MediaAsset{
		ID:             util.NewID(),
		OrganizationID: orgID,
		UploadedBy:     userID,
		Provider:       s.provider.Name(),
		PublicID:       asset.PublicID,
		URL:            asset.URL,
		FileName:       fileName,
		MimeType:       contentType,
		Bytes:          asset.Bytes,
		Width:          asset.Width,
		Height:         asset.Height,
		Folder:         asset.Folder,
	}
	if err := s.store.InsertMediaAsset(ctx, item); err != nil {
		return store.MediaAsset{}, err
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, orgID string, limit int) ([]store.MediaAsset, error) {
	return s.store.ListMediaAssets(ctx, orgID, limit)
}

// Remote lists what the provider holds for the organization, including files
// uploaded outside this service.
func (s *Service) Remote(ctx context.Context, orgID string, max int) ([]Asset, error) {
	if s.provider == nil {
		return nil, ErrProviderDisabled
	}
	return s.provider.List(ctx, orgID, max)
}

func (s *Service) Delete(ctx context.Context, orgID, assetID string) error {
	if s.provider == nil {
		return ErrProviderDisabled
	}
	asset, err := s.store.GetMediaAsset(ctx, orgID, assetID)
	if err != nil {
		return err
	}
	if err := s.provider.Delete(ctx, asset.PublicID, asset.MimeType); err != nil {
		return err
	}
	return s.store.DeleteMediaAsset(ctx, orgID, assetID)
}
