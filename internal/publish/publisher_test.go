package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, _ := io.ReadAll(r.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Errorf("request body not JSON: %v", err)
	}
	return out
}

func TestWebflowPublishCreatesAndPublishesItem(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer wf-token" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		body := decodeBody(t, r)
		switch r.URL.Path {
		case "/v2/collections/col-1/items":
			fields, _ := body["fieldData"].(map[string]any)
			if fields["name"] != "Hello" || fields["post-body"] != "<p>Body</p>" {
				t.Errorf("unexpected fieldData %v", fields)
			}
			_, _ = w.Write([]byte(`{"id":"item-9","fieldData":{"slug":"hello"}}`))
		case "/v2/collections/col-1/items/publish":
			ids, _ := body["itemIds"].([]any)
			if len(ids) != 1 || ids[0] != "item-9" {
				t.Errorf("unexpected itemIds %v", body["itemIds"])
			}
			_, _ = w.Write([]byte(`{"publishedItemIds":["item-9"]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	wf := NewWebflow(WebflowConfig{APIToken: "wf-token", CollectionID: "col-1", SiteURL: "https://site.test/blog/"}, server.Client())
	wf.baseURL = server.URL

	result, err := wf.Publish(context.Background(), PublishInput{Title: "Hello", Slug: "hello", Content: "<p>Body</p>"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.ExternalID != "item-9" || result.ExternalURL != "https://site.test/blog/hello" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(paths) != 2 {
		t.Fatalf("expected create and publish calls, got %v", paths)
	}
}

func TestWebflowDraftSkipsPublishCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"id":"item-1"}`))
	}))
	defer server.Close()

	wf := NewWebflow(WebflowConfig{APIToken: "t", CollectionID: "c"}, server.Client())
	wf.baseURL = server.URL
	if _, err := wf.Publish(context.Background(), PublishInput{Title: "x", Draft: true}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call for drafts, got %d", calls)
	}
}

func TestWordPressPublishUsesBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "editor" || pass != "app pass" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		if r.URL.Path != "/wp-json/wp/v2/posts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if body := decodeBody(t, r); body["status"] != "draft" {
			t.Errorf("expected draft status, got %v", body["status"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"link":"https://wp.test/?p=42"}`))
	}))
	defer server.Close()

	wp := NewWordPress(WordPressConfig{SiteURL: server.URL + "/", Username: "editor", AppPassword: "app pass"}, server.Client())
	result, err := wp.Publish(context.Background(), PublishInput{Title: "Hi", Draft: true})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.ExternalID != "42" || result.ExternalURL != "https://wp.test/?p=42" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestShopifyPublishAndPlatformError(t *testing.T) {
	fail := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shp-token" {
			t.Errorf("missing shopify token header")
		}
		if fail {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":{"title":["can't be blank"]}}`))
			return
		}
		if r.URL.Path != "/admin/api/2024-01/blogs/77/articles.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		article, _ := body["article"].(map[string]any)
		if article["tags"] != "seo, tomatoes" || article["published"] != true {
			t.Errorf("unexpected article %v", article)
		}
		_, _ = w.Write([]byte(`{"article":{"id":1001,"handle":"hello-world"}}`))
	}))
	defer server.Close()

	shop := NewShopify(ShopifyConfig{ShopDomain: server.URL, AccessToken: "shp-token", BlogID: "77", BlogHandle: "news"}, server.Client())
	result, err := shop.Publish(context.Background(), PublishInput{Title: "Hello", Tags: []string{"seo", "tomatoes"}})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.ExternalID != "1001" || result.ExternalURL != server.URL+"/blogs/news/hello-world" {
		t.Fatalf("unexpected result %+v", result)
	}

	fail = true
	_, err = shop.Publish(context.Background(), PublishInput{})
	var platformErr *PlatformError
	if !errors.As(err, &platformErr) || platformErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected platform error with 422, got %v", err)
	}
	if !strings.Contains(platformErr.Body, "blank") {
		t.Fatalf("expected body excerpt, got %q", platformErr.Body)
	}
}

func TestValidateConfig(t *testing.T) {
	if _, err := ValidateConfig(PlatformWebflow, json.RawMessage(`{"api_token":"x"}`)); err == nil || !strings.Contains(err.Error(), "collection_id") {
		t.Fatalf("expected missing collection_id, got %v", err)
	}
	if _, err := ValidateConfig("ghost", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected unknown provider error")
	}
	out, err := ValidateConfig(PlatformShopify, json.RawMessage(`{"shop_domain":"s.myshopify.com","access_token":"t","blog_id":"1"}`))
	if err != nil {
		t.Fatalf("ValidateConfig() error = %v", err)
	}
	if !strings.Contains(string(out), DefaultShopifyAPIVersion) {
		t.Fatalf("expected default api version, got %s", out)
	}
}

func TestRedactMasksSecrets(t *testing.T) {
	out := Redact(json.RawMessage(`{"api_token":"abcdef123456","collection_id":"col-1","app_password":"xy","client_secret":"abcd1234"}`))
	var cfg map[string]string
	if err := json.Unmarshal(out, &cfg); err != nil {
		t.Fatalf("redacted config not JSON: %v", err)
	}
	if cfg["api_token"] != "••••3456" {
		t.Fatalf("unexpected token mask %q", cfg["api_token"])
	}
	if cfg["collection_id"] != "col-1" {
		t.Fatalf("expected non-secret untouched, got %q", cfg["collection_id"])
	}
	if cfg["app_password"] != "••••" {
		t.Fatalf("expected short secret fully masked, got %q", cfg["app_password"])
	}
	if cfg["client_secret"] != "••••" {
		t.Fatalf("expected eight-rune secret fully masked, got %q", cfg["client_secret"])
	}
}

func TestMergeConfigKeepsMaskedSecrets(t *testing.T) {
	merged, err := MergeConfig(
		json.RawMessage(`{"api_token":"secret-value","collection_id":"old"}`),
		json.RawMessage(`{"api_token":"••••alue","collection_id":"new"}`),
	)
	if err != nil {
		t.Fatalf("MergeConfig() error = %v", err)
	}
	var cfg map[string]string
	_ = json.Unmarshal(merged, &cfg)
	if cfg["api_token"] != "secret-value" || cfg["collection_id"] != "new" {
		t.Fatalf("unexpected merge %v", cfg)
	}
}
