package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blogwriter/api/internal/blogwriter"
	"blogwriter/api/internal/export"
	"blogwriter/api/internal/store"
)

func TestPostLifecycleOverHTTP(t *testing.T) {
	fs := newFakeStore()
	writer := fs.addUser(store.User{ID: "writer-1", Role: "writer", DisplayName: "Wren"})
	revisions := &fakeRevisions{}
	svc := newTestService(fs, func(d *Deps) { d.Revisions = revisions })
	handler := NewHTTPServer(svc, nil).Handler()
	token := tokenFor(t, svc, writer)

	rr := postJSON(t, handler, "/api/blog-posts", `{"title":"Cold Brew at Home","content":"# Steps\n\nSteep overnight."}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created store.BlogPost
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if created.Slug != "cold-brew-at-home" || created.CreatedBy != "writer-1" {
		t.Fatalf("unexpected post %+v", created)
	}

	dup := postJSON(t, handler, "/api/blog-posts", `{"title":"Cold Brew at Home"}`, token)
	if dup.Code != http.StatusConflict || decodeMap(t, dup)["code"] != "SLUG_TAKEN" {
		t.Fatalf("expected 409 SLUG_TAKEN, got %d body=%s", dup.Code, dup.Body.String())
	}

	req := httptest.NewRequest(http.MethodPut, "/api/blog-posts/"+created.ID, strings.NewReader(`{"excerpt":"Slow and smooth","status":"in_review"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	upd := httptest.NewRecorder()
	handler.ServeHTTP(upd, req)
	if upd.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", upd.Code, upd.Body.String())
	}
	if got := fs.posts[created.ID]; got.Excerpt != "Slow and smooth" || got.Status != store.PostStatusInReview || got.Title != "Cold Brew at Home" {
		t.Fatalf("unexpected stored post %+v", got)
	}
	if len(revisions.commits) != 2 {
		t.Fatalf("expected create and update commits, got %v", revisions.commits)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/blog-posts/"+created.ID+"/history/deadbeef", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	hist := httptest.NewRecorder()
	handler.ServeHTTP(hist, req)
	if hist.Code != http.StatusNotFound {
		t.Fatalf("expected unknown revision 404, got %d", hist.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/blog-posts/"+created.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	del := httptest.NewRecorder()
	handler.ServeHTTP(del, req)
	if del.Code != http.StatusOK {
		t.Fatalf("expected creator delete 200, got %d body=%s", del.Code, del.Body.String())
	}
	if _, ok := fs.posts[created.ID]; ok {
		t.Fatal("expected post to be deleted")
	}
}

func TestExportPostAsHTML(t *testing.T) {
	fs := newFakeStore()
	viewer := fs.addUser(store.User{ID: "viewer-1", Role: "viewer"})
	fs.addPost(store.BlogPost{ID: "post-1", OrganizationID: "org-1", Title: "Pour Over", Content: "## Ratio\n\n1:16 **always**"})
	svc := newTestService(fs, func(d *Deps) { d.Export = export.NewService() })
	handler := NewHTTPServer(svc, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/blog-posts/post-1/export?format=html", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, viewer))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html content type, got %q", ct)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "Pour") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rr.Body.String(), "<strong>always</strong>") {
		t.Fatalf("expected rendered markdown, got %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/blog-posts/post-1/export?format=docx", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, viewer))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected unsupported format 422, got %d", rr.Code)
	}
}

func TestGenerationStreamPassesBytesThrough(t *testing.T) {
	fs := newFakeStore()
	writer := fs.addUser(store.User{ID: "writer-1", Role: "writer"})
	upstreamBody := "event: stage\ndata: {\"stage\":\"outline\"}\n\ndata: {\"stage\":\"done\"}\n\n"
	var gotPath string
	gen := &fakeGenerator{
		openStreamFn: func(_ context.Context, path string, _ any) (*http.Response, error) {
			gotPath = path
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
				Body:       io.NopCloser(strings.NewReader(upstreamBody)),
			}, nil
		},
	}
	svc := newTestService(fs, func(d *Deps) { d.Generator = gen })
	handler := NewHTTPServer(svc, nil).Handler()

	rr := postJSON(t, handler, "/api/blog-generation/stream", `{"topic":"espresso"}`, tokenFor(t, svc, writer))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if gotPath != blogwriter.PathGenerateStream {
		t.Fatalf("unexpected upstream path %q", gotPath)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}
	if rr.Body.String() != upstreamBody {
		t.Fatalf("expected byte-identical stream, got %q", rr.Body.String())
	}
}

func TestGenerationStreamUpstreamError(t *testing.T) {
	fs := newFakeStore()
	writer := fs.addUser(store.User{ID: "writer-1", Role: "writer"})
	gen := &fakeGenerator{
		openStreamFn: func(context.Context, string, any) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(strings.NewReader("overloaded")),
			}, nil
		},
	}
	svc := newTestService(fs, func(d *Deps) { d.Generator = gen })
	handler := NewHTTPServer(svc, nil).Handler()

	rr := postJSON(t, handler, "/api/keywords/stream", `{"keywords":["coffee"]}`, tokenFor(t, svc, writer))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
	details, _ := decodeMap(t, rr)["details"].(map[string]any)
	if details["status"] != float64(http.StatusServiceUnavailable) || details["body"] != "overloaded" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestStartGenerationRequiresBackend(t *testing.T) {
	fs := newFakeStore()
	writer := fs.addUser(store.User{ID: "writer-1", Role: "writer"})
	svc := newTestService(fs, nil)
	handler := NewHTTPServer(svc, nil).Handler()

	rr := postJSON(t, handler, "/api/blog-generation", `{"topic":"espresso"}`, tokenFor(t, svc, writer))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d body=%s", rr.Code, rr.Body.String())
	}
	if code := decodeMap(t, rr)["code"]; code != "GENERATION_UNAVAILABLE" {
		t.Fatalf("expected GENERATION_UNAVAILABLE, got %v", code)
	}
}

func TestPollJobOverHTTP(t *testing.T) {
	fs := newFakeStore()
	writer := fs.addUser(store.User{ID: "writer-1", Role: "writer"})
	fs.queue["item-1"] = store.QueueItem{ID: "item-1", OrganizationID: "org-1", JobID: "job-1", Status: store.QueueStatusGenerating, Topic: "tea"}
	gen := &fakeGenerator{
		jobStatusFn: func(_ context.Context, jobID string) (blogwriter.JobStatus, error) {
			return blogwriter.JobStatus{JobID: jobID, Status: blogwriter.JobProcessing, ProgressPercentage: 42.5}, nil
		},
	}
	svc := newTestService(fs, func(d *Deps) { d.Generator = gen })
	handler := NewHTTPServer(svc, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/blog-generation/jobs/job-1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, writer))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var result struct {
		Job        blogwriter.JobStatus `json:"job"`
		QueueItem  store.QueueItem      `json:"queue_item"`
		NextPollMS int                  `json:"next_poll_ms"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode poll result: %v", err)
	}
	if result.QueueItem.Progress != 42 {
		t.Fatalf("expected progress 42, got %d", result.QueueItem.Progress)
	}
	if result.NextPollMS == 0 {
		t.Fatal("expected a poll hint while the job is running")
	}
}
