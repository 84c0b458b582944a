package blogwriter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, retries int, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(Config{BaseURL: server.URL, APIKey: "key-1", MaxRetries: retries, RetryDelay: time.Second}, nil)
	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return client, &waits
}

func TestRetriesOnlyOn503WithLinearBackoff(t *testing.T) {
	var calls int32
	client, waits := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"title":"T","content":"Body"}`))
	})

	if _, err := client.Generate(context.Background(), GenerateRequest{Topic: "go"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Fatalf("expected linear backoff [1s 2s], got %v", *waits)
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client, waits := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Generate(context.Background(), GenerateRequest{Topic: "go"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 UpstreamError, got %v", err)
	}
	if calls != 3 || len(*waits) != 2 {
		t.Fatalf("expected 3 calls and 2 waits, got %d calls %v", calls, *waits)
	}
}

func TestNoRetryOnOtherStatuses(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError, http.StatusBadGateway} {
		var calls int32
		client, waits := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, "nope", status)
		})

		_, err := client.Generate(context.Background(), GenerateRequest{Topic: "go"})
		var upstream *UpstreamError
		if !errors.As(err, &upstream) || upstream.Status != status {
			t.Fatalf("status %d: expected UpstreamError, got %v", status, err)
		}
		if calls != 1 || len(*waits) != 0 {
			t.Fatalf("status %d: expected a single attempt, got %d calls", status, calls)
		}
	}
}

func TestGenerateAsyncSendsBearerAndAsyncMode(t *testing.T) {
	client, _ := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != PathGenerate || r.URL.Query().Get("async_mode") != "true" {
			t.Errorf("unexpected url %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"job_id":"job-1","status":"queued"}`))
	})

	job, err := client.GenerateAsync(context.Background(), GenerateRequest{Topic: "go"})
	if err != nil {
		t.Fatalf("GenerateAsync() error = %v", err)
	}
	if job.JobID != "job-1" || job.Status != JobQueued {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestJobStatus(t *testing.T) {
	client, _ := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/blog/jobs/job-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"job_id":"job-1","status":"completed","progress_percentage":100,"result":{"content":"x"}}`))
	})

	status, err := client.JobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if !status.Terminal() || status.ProgressPercentage != 100 || len(status.Result) == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestParseResultHandlesNestedBlog(t *testing.T) {
	blog, err := ParseResult([]byte(`{"blog":{"title":"Nested","content":"Body"},"seo_score":80}`))
	if err != nil || blog.Title != "Nested" {
		t.Fatalf("unexpected nested parse %+v %v", blog, err)
	}
	blog, err = ParseResult([]byte(`{"title":"Flat","content":"Body","keywords":["a"]}`))
	if err != nil || blog.Title != "Flat" || len(blog.Keywords) != 1 {
		t.Fatalf("unexpected flat parse %+v %v", blog, err)
	}
	if _, err := ParseResult([]byte(`{"title":"Empty"}`)); err == nil {
		t.Fatal("expected error for empty content")
	}
}
