// Package dataforseo is a client for the DataForSEO keyword and SERP APIs.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogwriter/api/internal/metrics"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const statusOK = 20000

const (
	pathSearchVolume = "/v3/keywords_data/google_ads/search_volume/live"
	pathKeywordIdeas = "/v3/dataforseo_labs/google/keyword_ideas/live"
	pathSERP         = "/v3/serp/google/organic/live/regular"
)

// APIError is returned for transport-level or task-level failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dataforseo: %d %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL  string
	Login    string
	Password string
	RPS      float64
	Timeout  time.Duration
}

type Client struct {
	baseURL    string
	login      string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		login:      cfg.Login,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// KeywordMetric is the normalized view of one keyword across endpoints.
type KeywordMetric struct {
	Keyword          string          `json:"keyword"`
	SearchVolume     int64           `json:"search_volume"`
	CPC              float64         `json:"cpc"`
	Competition      float64         `json:"competition"`
	CompetitionIndex int             `json:"competition_index"`
	Difficulty       int             `json:"difficulty"`
	SearchIntent     string          `json:"search_intent"`
	MonthlySearches  []MonthlyVolume `json:"monthly_searches"`
}

type MonthlyVolume struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	SearchVolume int64 `json:"search_volume"`
}

type SERPResult struct {
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
}

// SearchVolume returns Google Ads volume metrics for keywords.
func (c *Client) SearchVolume(ctx context.Context, keywords []string, location, language string) ([]KeywordMetric, error) {
	task := c.task(location, language)
	task["keywords"] = keywords

	body, err := c.post(ctx, pathSearchVolume, task)
	if err != nil {
		return nil, err
	}

	var out []KeywordMetric
	gjson.GetBytes(body, "tasks.0.result").ForEach(func(_, item gjson.Result) bool {
		out = append(out, KeywordMetric{
			Keyword:          item.Get("keyword").String(),
			SearchVolume:     item.Get("search_volume").Int(),
			CPC:              item.Get("cpc").Float(),
			CompetitionIndex: int(item.Get("competition_index").Int()),
			Competition:      float64(item.Get("competition_index").Int()) / 100,
			Difficulty:       int(item.Get("competition_index").Int()),
			MonthlySearches:  monthly(item.Get("monthly_searches")),
		})
		return true
	})
	return out, nil
}

// KeywordIdeas returns related keyword ideas for a seed keyword.
func (c *Client) KeywordIdeas(ctx context.Context, seed, location, language string, limit int) ([]KeywordMetric, error) {
	if limit <= 0 {
		limit = 50
	}
	task := c.task(location, language)
	task["keywords"] = []string{seed}
	task["limit"] = limit

	body, err := c.post(ctx, pathKeywordIdeas, task)
	if err != nil {
		return nil, err
	}

	var out []KeywordMetric
	gjson.GetBytes(body, "tasks.0.result.0.items").ForEach(func(_, item gjson.Result) bool {
		info := item.Get("keyword_info")
		out = append(out, KeywordMetric{
			Keyword:          item.Get("keyword").String(),
			SearchVolume:     info.Get("search_volume").Int(),
			CPC:              info.Get("cpc").Float(),
			Competition:      info.Get("competition").Float(),
			CompetitionIndex: int(info.Get("competition").Float() * 100),
			Difficulty:       int(item.Get("keyword_properties.keyword_difficulty").Int()),
			SearchIntent:     item.Get("search_intent_info.main_intent").String(),
			MonthlySearches:  monthly(info.Get("monthly_searches")),
		})
		return true
	})
	return out, nil
}

// SERP returns the organic results for keyword.
func (c *Client) SERP(ctx context.Context, keyword, location, language string, depth int) ([]SERPResult, error) {
	if depth <= 0 {
		depth = 10
	}
	task := c.task(location, language)
	task["keyword"] = keyword
	task["depth"] = depth

	body, err := c.post(ctx, pathSERP, task)
	if err != nil {
		return nil, err
	}

	var out []SERPResult
	gjson.GetBytes(body, "tasks.0.result.0.items").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "organic" {
			return true
		}
		out = append(out, SERPResult{
			Rank:        int(item.Get("rank_group").Int()),
			Title:       item.Get("title").String(),
			URL:         item.Get("url").String(),
			Domain:      item.Get("domain").String(),
			Description: item.Get("description").String(),
		})
		return true
	})
	return out, nil
}

func (c *Client) task(location, language string) map[string]any {
	task := map[string]any{"language_code": language}
	if code, err := strconv.Atoi(strings.TrimSpace(location)); err == nil {
		task["location_code"] = code
	} else {
		task["location_name"] = location
	}
	return task
}

func (c *Client) post(ctx context.Context, path string, task map[string]any) (body []byte, err error) {
	defer func() { metrics.Upstream("dataforseo", err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("dataforseo rate limit: %w", err)
	}

	payload, err := json.Marshal([]map[string]any{task})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("dataforseo request failed", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: excerpt(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "invalid JSON response"}
	}
	if code := gjson.GetBytes(body, "status_code").Int(); code != statusOK {
		return nil, &APIError{StatusCode: int(code), Message: gjson.GetBytes(body, "status_message").String()}
	}
	if code := gjson.GetBytes(body, "tasks.0.status_code").Int(); code != statusOK {
		c.logger.Warn("dataforseo task failed", zap.String("path", path), zap.Int64("status_code", code))
		return nil, &APIError{StatusCode: int(code), Message: gjson.GetBytes(body, "tasks.0.status_message").String()}
	}
	return body, nil
}

func monthly(list gjson.Result) []MonthlyVolume {
	out := []MonthlyVolume{}
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, MonthlyVolume{
			Year:         int(item.Get("year").Int()),
			Month:        int(item.Get("month").Int()),
			SearchVolume: item.Get("search_volume").Int(),
		})
		return true
	})
	return out
}

func excerpt(body []byte) string {
	const max = 512
	text := strings.TrimSpace(string(body))
	if len(text) > max {
		return text[:max]
	}
	return text
}
