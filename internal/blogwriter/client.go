// Package blogwriter is a client for the external content generation backend.
package blogwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blogwriter/api/internal/metrics"
	"go.uber.org/zap"
)

const (
	PathGenerate       = "/api/v1/blog/generate-enhanced"
	PathGenerateStream = "/api/v1/blog/generate-enhanced/stream"
	PathKeywordStream  = "/api/v1/keywords/enhanced/stream"
	pathJobs           = "/api/v1/blog/jobs/"
	pathHealth         = "/health"
)

const (
	JobQueued     = "queued"
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// UpstreamError carries a non-2xx response from the backend.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("blog writer upstream returned %d: %s", e.Status, e.Body)
}

type Config struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by the caller's context.
	streamClient *http.Client
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		maxRetries:   retries,
		retryDelay:   delay,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logger,
		sleep:        sleepContext,
	}
}

type GenerateRequest struct {
	Topic              string   `json:"topic"`
	Keywords           []string `json:"keywords"`
	Tone               string   `json:"tone,omitempty"`
	WordCount          int      `json:"word_count"`
	TargetAudience     string   `json:"target_audience,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
}

// GeneratedBlog is the content portion of a generation result.
type GeneratedBlog struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Excerpt         string   `json:"excerpt"`
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	SEOScore        float64  `json:"seo_score"`
	WordCount       int      `json:"word_count"`
}

type AsyncJob struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobStatus struct {
	JobID              string          `json:"job_id"`
	Status             string          `json:"status"`
	ProgressPercentage float64         `json:"progress_percentage"`
	CurrentStage       string          `json:"current_stage,omitempty"`
	Result             json.RawMessage `json:"result,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
}

// Terminal reports whether the job will not change again.
func (j JobStatus) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Generate runs a synchronous generation and returns the raw result body.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, PathGenerate, req)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) GenerateAsync(ctx context.Context, req GenerateRequest) (AsyncJob, error) {
	body, err := c.do(ctx, http.MethodPost, PathGenerate+"?async_mode=true", req)
	if err != nil {
		return AsyncJob{}, err
	}
	var job AsyncJob
	if err := json.Unmarshal(body, &job); err != nil {
		return AsyncJob{}, fmt.Errorf("decode async job: %w", err)
	}
	if job.JobID == "" {
		return AsyncJob{}, &UpstreamError{Status: http.StatusBadGateway, Body: "response did not include a job_id"}
	}
	return job, nil
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	body, err := c.do(ctx, http.MethodGet, pathJobs+url.PathEscape(jobID), nil)
	if err != nil {
		return JobStatus{}, err
	}
	var status JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return JobStatus{}, fmt.Errorf("decode job status: %w", err)
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return status, nil
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, pathHealth, nil)
	return err
}

// OpenStream starts a streaming request. The caller owns the response body.
// Non-2xx responses are returned as-is so the proxy can report them.
func (c *Client) OpenStream(ctx context.Context, path string, payload any) (*http.Response, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	metrics.Upstream("blogwriter", err)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return resp, nil
}

// do retries only on 503, waiting attempt × retryDelay between tries.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		body, status, err := c.once(ctx, method, path, encoded)
		if err != nil {
			metrics.Upstream("blogwriter", err)
			return nil, err
		}
		if status >= 200 && status < 300 {
			metrics.Upstream("blogwriter", nil)
			return body, nil
		}

		upstreamErr := &UpstreamError{Status: status, Body: excerpt(body)}
		if status != http.StatusServiceUnavailable || attempt >= c.maxRetries {
			c.logger.Warn("blog writer request failed",
				zap.String("path", path), zap.Int("status", status), zap.Int("attempt", attempt+1))
			metrics.Upstream("blogwriter", upstreamErr)
			return nil, upstreamErr
		}

		wait := time.Duration(attempt+1) * c.retryDelay
		c.logger.Info("blog writer unavailable, retrying",
			zap.String("path", path), zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func excerpt(body []byte) string {
	const max = 512
	text := strings.TrimSpace(string(body))
	if len(text) > max {
		return text[:max]
	}
	return text
}

// ParseResult extracts the blog fields from a generation result. The backend
// nests them under "blog" in some versions.
func ParseResult(raw json.RawMessage) (GeneratedBlog, error) {
	var envelope struct {
		Blog *GeneratedBlog `json:"blog"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Blog != nil && envelope.Blog.Content != "" {
		return *envelope.Blog, nil
	}
	var blog GeneratedBlog
	if err := json.Unmarshal(raw, &blog); err != nil {
		return GeneratedBlog{}, fmt.Errorf("decode generation result: %w", err)
	}
	if strings.TrimSpace(blog.Content) == "" {
		return GeneratedBlog{}, fmt.Errorf("decode generation result: content is empty")
	}
	return blog, nil
}
