// Package publish pushes blog posts to external CMS platforms.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blogwriter/api/internal/metrics"
)

const (
	PlatformWebflow   = "webflow"
	PlatformWordPress = "wordpress"
	PlatformShopify   = "shopify"
)

var Platforms = []string{PlatformWebflow, PlatformWordPress, PlatformShopify}

type PublishInput struct {
	Title    string
	Slug     string
	Content  string
	Excerpt  string
	Tags     []string
	ImageURL string
	Draft    bool
}

type PublishResult struct {
	ExternalID  string `json:"externalId"`
	ExternalURL string `json:"externalUrl"`
}

type Publisher interface {
	Publish(ctx context.Context, input PublishInput) (PublishResult, error)
	Test(ctx context.Context) error
	Platform() string
}

// PlatformError is a non-2xx answer from a CMS API.
type PlatformError struct {
	Platform string
	Status   int
	Body     string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Platform, e.Status, e.Body)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

type request struct {
	platform string
	method   string
	url      string
	body     any
	auth     func(*http.Request)
}

func do(ctx context.Context, client *http.Client, r request) (body []byte, err error) {
	defer func() { metrics.Upstream(r.platform, err) }()

	var payload io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", r.platform, err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, payload)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", r.platform, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.auth(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", r.platform, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.platform, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(body))
		if len(text) > 512 {
			text = text[:512]
		}
		return nil, &PlatformError{Platform: r.platform, Status: resp.StatusCode, Body: text}
	}
	return body, nil
}
