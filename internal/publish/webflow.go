package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const webflowBaseURL = "https://api.webflow.com"

type Webflow struct {
	cfg     WebflowConfig
	baseURL string
	client  *http.Client
}

func NewWebflow(cfg WebflowConfig, client *http.Client) *Webflow {
	return &Webflow{cfg: cfg, baseURL: webflowBaseURL, client: client}
}

func (w *Webflow) Platform() string {
	return PlatformWebflow
}

func (w *Webflow) auth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIToken)
}

func (w *Webflow) collectionURL(suffix string) string {
	return w.baseURL + "/v2/collections/" + url.PathEscape(w.cfg.CollectionID) + suffix
}

func (w *Webflow) Publish(ctx context.Context, input PublishInput) (PublishResult, error) {
	fields := map[string]any{
		"name":         input.Title,
		"slug":         input.Slug,
		"post-body":    input.Content,
		"post-summary": input.Excerpt,
	}
	if input.ImageURL != "" {
		fields["main-image"] = input.ImageURL
	}

	body, err := do(ctx, w.client, request{
		platform: PlatformWebflow,
		method:   http.MethodPost,
		url:      w.collectionURL("/items"),
		body:     map[string]any{"isArchived": false, "isDraft": input.Draft, "fieldData": fields},
		auth:     w.auth,
	})
	if err != nil {
		return PublishResult{}, err
	}
	itemID := gjson.GetBytes(body, "id").String()
	if itemID == "" {
		return PublishResult{}, fmt.Errorf("webflow: item id missing from response")
	}

	if !input.Draft {
		_, err := do(ctx, w.client, request{
			platform: PlatformWebflow,
			method:   http.MethodPost,
			url:      w.collectionURL("/items/publish"),
			body:     map[string]any{"itemIds": []string{itemID}},
			auth:     w.auth,
		})
		if err != nil {
			return PublishResult{}, err
		}
	}

	result := PublishResult{ExternalID: itemID}
	if w.cfg.SiteURL != "" {
		slug := gjson.GetBytes(body, "fieldData.slug").String()
		if slug == "" {
			slug = input.Slug
		}
		result.ExternalURL = strings.TrimRight(w.cfg.SiteURL, "/") + "/" + slug
	}
	return result, nil
}

func (w *Webflow) Test(ctx context.Context) error {
	_, err := do(ctx, w.client, request{
		platform: PlatformWebflow,
		method:   http.MethodGet,
		url:      w.collectionURL(""),
		auth:     w.auth,
	})
	return err
}
