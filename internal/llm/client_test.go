package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func completion(content string) string {
	encoded, _ := json.Marshal(content)
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + string(encoded) + `}}],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
}

func TestChatDecodesStructuredReply(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(`{"meta_title":"Hello"}`)))
	}))
	defer server.Close()

	client := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1/", Model: "gpt-test"}, nil)
	var out struct {
		MetaTitle string `json:"meta_title"`
	}
	err := client.Chat(context.Background(), Request{
		SystemPrompt: "system",
		UserPrompt:   "user",
		SchemaName:   "meta_tags",
		Schema:       map[string]any{"type": "object"},
	}, &out)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out.MetaTitle != "Hello" {
		t.Fatalf("expected decoded title, got %q", out.MetaTitle)
	}
	if gotBody["model"] != "gpt-test" {
		t.Fatalf("expected model gpt-test, got %v", gotBody["model"])
	}
	if _, ok := gotBody["response_format"]; !ok {
		t.Fatal("expected response_format in request")
	}
}

func TestChatRejectsNonJSONReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("not json")))
	}))
	defer server.Close()

	client := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1/"}, nil)
	var out map[string]any
	if err := client.Chat(context.Background(), Request{UserPrompt: "x", SchemaName: "s", Schema: map[string]any{}}, &out); err == nil {
		t.Fatal("expected error for non-JSON reply")
	}
}
