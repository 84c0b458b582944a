// Package media stores uploaded images and videos with Cloudinary or an
// S3-compatible bucket.
package media

import (
	"context"
	"io"
	"time"
)

const (
	ProviderCloudinary = "cloudinary"
	ProviderS3         = "s3"
)

type UploadInput struct {
	OrganizationID string
	FileName       string
	ContentType    string
	Size           int64
	Body           io.Reader
}

type Asset struct {
	PublicID    string    `json:"publicId"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Bytes       int64     `json:"bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Folder      string    `json:"folder"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Provider interface {
	Upload(ctx context.Context, input UploadInput) (Asset, error)
	// Delete removes an asset. contentType is the stored MIME type; providers
	// that keep images and videos apart use it to pick the resource.
	Delete(ctx context.Context, publicID, contentType string) error
	List(ctx context.Context, prefix string, max int) ([]Asset, error)
	Name() string
}
