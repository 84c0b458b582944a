package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxPosts = "blogwriter_posts"

// Meili indexes and searches posts in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  *zap.Logger
}

// NewMeili creates a Meilisearch client and configures the posts index. An
// unreachable server is not an error; the health loop keeps probing.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger,
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxPosts, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxPosts), zap.Error(err))
	}

	index := m.client.Index(idxPosts)
	filterable := []interface{}{"organizationId", "status"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"title", "keywords", "excerpt", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	filters := []string{fmt.Sprintf("organizationId = %q", q.OrganizationID)}
	if q.Status != "" {
		filters = append(filters, fmt.Sprintf("status = %q", q.Status))
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxPosts,
			Query:                 q.Text,
			Limit:                 int64(q.Limit),
			Offset:                int64(q.Offset),
			Filter:                filters,
			AttributesToRetrieve:  []string{"id", "title", "slug", "excerpt", "status"},
			AttributesToHighlight: []string{"title", "excerpt"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, Result{
				ID:      decodeString(hit, "id"),
				Title:   firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
				Slug:    decodeString(hit, "slug"),
				Snippet: firstNonBlank(decodeFormattedString(hit, "excerpt"), decodeString(hit, "excerpt")),
				Status:  decodeString(hit, "status"),
			})
		}
	}
	return results, total, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexPosts(posts []PostRecord) error {
	if len(posts) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPosts).AddDocuments(posts, nil)
	return err
}

func (m *Meili) DeletePost(id string) error {
	_, err := m.client.Index(idxPosts).DeleteDocument(id, nil)
	return err
}
