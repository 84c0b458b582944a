package publish

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

type WordPress struct {
	cfg    WordPressConfig
	client *http.Client
}

func NewWordPress(cfg WordPressConfig, client *http.Client) *WordPress {
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &WordPress{cfg: cfg, client: client}
}

func (w *WordPress) Platform() string {
	return PlatformWordPress
}

func (w *WordPress) auth(req *http.Request) {
	req.SetBasicAuth(w.cfg.Username, w.cfg.AppPassword)
}

func (w *WordPress) Publish(ctx context.Context, input PublishInput) (PublishResult, error) {
	status := "publish"
	if input.Draft {
		status = "draft"
	}
	body, err := do(ctx, w.client, request{
		platform: PlatformWordPress,
		method:   http.MethodPost,
		url:      w.cfg.SiteURL + "/wp-json/wp/v2/posts",
		body: map[string]any{
			"title":   input.Title,
			"content": input.Content,
			"excerpt": input.Excerpt,
			"slug":    input.Slug,
			"status":  status,
		},
		auth: w.auth,
	})
	if err != nil {
		return PublishResult{}, err
	}
	id := gjson.GetBytes(body, "id")
	if !id.Exists() {
		return PublishResult{}, fmt.Errorf("wordpress: post id missing from response")
	}
	return PublishResult{ExternalID: id.String(), ExternalURL: gjson.GetBytes(body, "link").String()}, nil
}

func (w *WordPress) Test(ctx context.Context) error {
	_, err := do(ctx, w.client, request{
		platform: PlatformWordPress,
		method:   http.MethodGet,
		url:      w.cfg.SiteURL + "/wp-json/wp/v2/users/me",
		auth:     w.auth,
	})
	return err
}
