package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"blogwriter/api/internal/metrics"
	"blogwriter/api/internal/util"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
	Folder    string
}

type S3 struct {
	client    *minio.Client
	bucket    string
	folder    string
	publicURL string
}

func NewS3(cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return &S3{client: client, bucket: cfg.Bucket, folder: strings.Trim(cfg.Folder, "/"), publicURL: publicURL}, nil
}

func (s *S3) Name() string {
	return ProviderS3
}

// ObjectKey places uploads under {folder}/{org}/{uuid}-{name}.
func ObjectKey(folder, orgID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	return strings.TrimLeft(path.Join(folder, orgID, util.NewID()+"-"+name), "/")
}

func (s *S3) url(key string) string {
	return s.publicURL + "/" + key
}

func (s *S3) Upload(ctx context.Context, input UploadInput) (asset Asset, err error) {
	defer func() { metrics.Upstream("s3", err) }()

	key := ObjectKey(s.folder, input.OrganizationID, input.FileName)
	info, err := s.client.PutObject(ctx, s.bucket, key, input.Body, input.Size, minio.PutObjectOptions{
		ContentType: input.ContentType,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("put object: %w", err)
	}
	return Asset{
		PublicID:    key,
		URL:         s.url(key),
		ContentType: input.ContentType,
		Bytes:       info.Size,
		Folder:      path.Dir(key),
		CreatedAt:   info.LastModified,
	}, nil
}

func (s *S3) Delete(ctx context.Context, publicID, _ string) (err error) {
	defer func() { metrics.Upstream("s3", err) }()

	if err := s.client.RemoveObject(ctx, s.bucket, publicID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string, max int) ([]Asset, error) {
	if max <= 0 {
		max = 100
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	assets := []Asset{}
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    strings.TrimLeft(path.Join(s.folder, prefix)+"/", "/"),
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects: %w", object.Err)
		}
		assets = append(assets, Asset{
			PublicID:    object.Key,
			URL:         s.url(object.Key),
			ContentType: object.ContentType,
			Bytes:       object.Size,
			Folder:      path.Dir(object.Key),
			CreatedAt:   object.LastModified,
		})
		if len(assets) >= max {
			break
		}
	}
	return assets, nil
}
