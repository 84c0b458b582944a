package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

type Shopify struct {
	cfg     ShopifyConfig
	baseURL string
	client  *http.Client
}

func NewShopify(cfg ShopifyConfig, client *http.Client) *Shopify {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultShopifyAPIVersion
	}
	base := strings.TrimRight(cfg.ShopDomain, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Shopify{cfg: cfg, baseURL: base, client: client}
}

func (s *Shopify) Platform() string {
	return PlatformShopify
}

func (s *Shopify) auth(req *http.Request) {
	req.Header.Set("X-Shopify-Access-Token", s.cfg.AccessToken)
}

func (s *Shopify) blogURL() string {
	return s.baseURL + "/admin/api/" + url.PathEscape(s.cfg.APIVersion) + "/blogs/" + url.PathEscape(s.cfg.BlogID)
}

func (s *Shopify) Publish(ctx context.Context, input PublishInput) (PublishResult, error) {
	article := map[string]any{
		"title":        input.Title,
		"body_html":    input.Content,
		"summary_html": input.Excerpt,
		"handle":       input.Slug,
		"tags":         strings.Join(input.Tags, ", "),
		"published":    !input.Draft,
	}
	if input.ImageURL != "" {
		article["image"] = map[string]string{"src": input.ImageURL}
	}

	body, err := do(ctx, s.client, request{
		platform: PlatformShopify,
		method:   http.MethodPost,
		url:      s.blogURL() + "/articles.json",
		body:     map[string]any{"article": article},
		auth:     s.auth,
	})
	if err != nil {
		return PublishResult{}, err
	}
	id := gjson.GetBytes(body, "article.id")
	if !id.Exists() {
		return PublishResult{}, fmt.Errorf("shopify: article id missing from response")
	}

	handle := gjson.GetBytes(body, "article.handle").String()
	if handle == "" {
		handle = input.Slug
	}
	blog := s.cfg.BlogHandle
	if blog == "" {
		blog = s.cfg.BlogID
	}
	return PublishResult{
		ExternalID:  id.String(),
		ExternalURL: s.baseURL + "/blogs/" + blog + "/" + handle,
	}, nil
}

func (s *Shopify) Test(ctx context.Context) error {
	_, err := do(ctx, s.client, request{
		platform: PlatformShopify,
		method:   http.MethodGet,
		url:      s.blogURL() + ".json",
		auth:     s.auth,
	})
	return err
}
