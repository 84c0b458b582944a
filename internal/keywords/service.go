// Package keywords orchestrates keyword research over the provider and the
// shared keyword cache.
package keywords

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"blogwriter/api/internal/dataforseo"
	"blogwriter/api/internal/metrics"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

const (
	SearchTypeVolume = "search_volume"
	SearchTypeIdeas  = "keyword_ideas"
	SearchTypeSERP   = "serp"

	DefaultLocation = "United States"
	DefaultLanguage = "en"
	MaxKeywords     = 100
)

// ErrProviderDisabled is returned when no provider credentials are configured.
var ErrProviderDisabled = errors.New("keyword provider is not configured")

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type Store interface {
	GetKeywordCache(ctx context.Context, key store.KeywordCacheKey) (store.KeywordCacheEntry, error)
	PutKeywordCache(ctx context.Context, key store.KeywordCacheKey, data []byte, expiresAt time.Time) error
	SaveKeywordResearch(ctx context.Context, research store.KeywordResearch) error
}

type Provider interface {
	SearchVolume(ctx context.Context, keywords []string, location, language string) ([]dataforseo.KeywordMetric, error)
	KeywordIdeas(ctx context.Context, seed, location, language string, limit int) ([]dataforseo.KeywordMetric, error)
	SERP(ctx context.Context, keyword, location, language string, depth int) ([]dataforseo.SERPResult, error)
}

type Service struct {
	store    Store
	provider Provider
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(s Store, provider Provider, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, provider: provider, ttl: ttl, logger: logger, now: time.Now}
}

type Request struct {
	Keywords   []string `json:"keywords"`
	Location   string   `json:"location"`
	Language   string   `json:"language"`
	SearchType string   `json:"search_type"`
	Save       bool     `json:"save"`
	Name       string   `json:"name"`
}

type Summary struct {
	TotalKeywords     int     `json:"total_keywords"`
	TotalVolume       int64   `json:"total_volume"`
	AverageCPC        float64 `json:"average_cpc"`
	AverageDifficulty float64 `json:"average_difficulty"`
	TopKeyword        string  `json:"top_keyword"`
}

type Response struct {
	Results    []dataforseo.KeywordMetric         `json:"results"`
	SERP       map[string][]dataforseo.SERPResult `json:"serp,omitempty"`
	Cached     int                                `json:"cached"`
	Fetched    int                                `json:"fetched"`
	Summary    Summary                            `json:"summary"`
	ResearchID string                             `json:"research_id,omitempty"`
}

// NormalizeKeyword lower-cases, trims, and collapses inner whitespace.
func NormalizeKeyword(keyword string) string {
	return strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
}

func (r *Request) normalize() error {
	seen := map[string]bool{}
	keywords := make([]string, 0, len(r.Keywords))
	for _, raw := range r.Keywords {
		keyword := NormalizeKeyword(raw)
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		keywords = append(keywords, keyword)
	}
	if len(keywords) == 0 {
		return &ValidationError{Message: "at least one keyword is required"}
	}
	if len(keywords) > MaxKeywords {
		return &ValidationError{Message: fmt.Sprintf("at most %d keywords per request", MaxKeywords)}
	}
	r.Keywords = keywords

	if r.Location = strings.TrimSpace(r.Location); r.Location == "" {
		r.Location = DefaultLocation
	}
	if r.Language = strings.ToLower(strings.TrimSpace(r.Language)); r.Language == "" {
		r.Language = DefaultLanguage
	}
	switch r.SearchType = strings.TrimSpace(r.SearchType); r.SearchType {
	case "":
		r.SearchType = SearchTypeVolume
	case SearchTypeVolume, SearchTypeIdeas, SearchTypeSERP:
	default:
		return &ValidationError{Message: "search_type must be one of search_volume, keyword_ideas, serp"}
	}
	return nil
}

// Research resolves every keyword from the cache first and fetches the
// remainder from the provider.
func (s *Service) Research(ctx context.Context, orgID, userID string, req Request) (*Response, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrProviderDisabled
	}

	resp := &Response{Results: []dataforseo.KeywordMetric{}}
	var err error
	switch req.SearchType {
	case SearchTypeVolume:
		err = s.researchVolume(ctx, req, resp)
	case SearchTypeIdeas:
		err = s.researchIdeas(ctx, req, resp)
	case SearchTypeSERP:
		err = s.researchSERP(ctx, req, resp)
	}
	if err != nil {
		return nil, err
	}
	resp.Summary = summarize(resp.Results)

	if req.Save {
		id, err := s.save(ctx, orgID, userID, req, resp)
		if err != nil {
			return nil, err
		}
		resp.ResearchID = id
	}
	return resp, nil
}

func (s *Service) researchVolume(ctx context.Context, req Request, resp *Response) error {
	found := map[string]dataforseo.KeywordMetric{}
	var misses []string
	for _, keyword := range req.Keywords {
		var metric dataforseo.KeywordMetric
		if s.cached(ctx, s.key(keyword, req.Location, req.Language, SearchTypeVolume), &metric) {
			found[keyword] = metric
			resp.Cached++
			continue
		}
		misses = append(misses, keyword)
	}

	if len(misses) > 0 {
		fetched, err := s.provider.SearchVolume(ctx, misses, req.Location, req.Language)
		if err != nil {
			return err
		}
		for _, metric := range fetched {
			keyword := NormalizeKeyword(metric.Keyword)
			metric.Keyword = keyword
			found[keyword] = metric
			s.put(ctx, s.key(keyword, req.Location, req.Language, SearchTypeVolume), metric)
		}
		resp.Fetched = len(misses)
	}

	for _, keyword := range req.Keywords {
		metric, ok := found[keyword]
		if !ok {
			metric = dataforseo.KeywordMetric{Keyword: keyword, MonthlySearches: []dataforseo.MonthlyVolume{}}
		}
		resp.Results = append(resp.Results, metric)
	}
	return nil
}

func (s *Service) researchIdeas(ctx context.Context, req Request, resp *Response) error {
	seen := map[string]bool{}
	for _, seed := range req.Keywords {
		ideas, cached, err := s.ideas(ctx, seed, req.Location, req.Language)
		if err != nil {
			return err
		}
		if cached {
			resp.Cached++
		} else {
			resp.Fetched++
		}
		for _, idea := range ideas {
			if seen[idea.Keyword] {
				continue
			}
			seen[idea.Keyword] = true
			resp.Results = append(resp.Results, idea)
		}
	}
	return nil
}

func (s *Service) researchSERP(ctx context.Context, req Request, resp *Response) error {
	resp.SERP = map[string][]dataforseo.SERPResult{}
	for _, keyword := range req.Keywords {
		key := s.key(keyword, req.Location, req.Language, SearchTypeSERP)
		var results []dataforseo.SERPResult
		if s.cached(ctx, key, &results) {
			resp.Cached++
		} else {
			fetched, err := s.provider.SERP(ctx, keyword, req.Location, req.Language, 10)
			if err != nil {
				return err
			}
			results = fetched
			s.put(ctx, key, results)
			resp.Fetched++
		}
		if results == nil {
			results = []dataforseo.SERPResult{}
		}
		resp.SERP[keyword] = results
	}
	return nil
}

// Suggestions returns keyword ideas for seed, shared with the research cache.
func (s *Service) Suggestions(ctx context.Context, seed, location, language string, limit int) ([]dataforseo.KeywordMetric, error) {
	seed = NormalizeKeyword(seed)
	if seed == "" {
		return nil, &ValidationError{Message: "seed keyword is required"}
	}
	if s.provider == nil {
		return nil, ErrProviderDisabled
	}
	if location = strings.TrimSpace(location); location == "" {
		location = DefaultLocation
	}
	if language = strings.TrimSpace(language); language == "" {
		language = DefaultLanguage
	}

	ideas, _, err := s.ideas(ctx, seed, location, language)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ideas) > limit {
		ideas = ideas[:limit]
	}
	return ideas, nil
}

// ideas caches the provider's full default list for seed. Callers that want
// fewer results truncate the returned slice.
func (s *Service) ideas(ctx context.Context, seed, location, language string) ([]dataforseo.KeywordMetric, bool, error) {
	key := s.key(seed, location, language, SearchTypeIdeas)
	var ideas []dataforseo.KeywordMetric
	if s.cached(ctx, key, &ideas) {
		return ideas, true, nil
	}
	ideas, err := s.provider.KeywordIdeas(ctx, seed, location, language, 0)
	if err != nil {
		return nil, false, err
	}
	for i := range ideas {
		ideas[i].Keyword = NormalizeKeyword(ideas[i].Keyword)
	}
	s.put(ctx, key, ideas)
	return ideas, false, nil
}

func (s *Service) key(keyword, location, language, searchType string) store.KeywordCacheKey {
	return store.KeywordCacheKey{
		Keyword:    NormalizeKeyword(keyword),
		Location:   NormalizeKeyword(location),
		Language:   NormalizeKeyword(language),
		SearchType: searchType,
	}
}

// cached decodes a live cache row into dest and reports whether it did.
func (s *Service) cached(ctx context.Context, key store.KeywordCacheKey, dest any) bool {
	entry, err := s.store.GetKeywordCache(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("keyword cache read failed", zap.String("keyword", key.Keyword), zap.Error(err))
		}
		metrics.KeywordCache(false)
		return false
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		s.logger.Warn("keyword cache entry unreadable", zap.String("keyword", key.Keyword), zap.Error(err))
		metrics.KeywordCache(false)
		return false
	}
	metrics.KeywordCache(true)
	return true
}

func (s *Service) put(ctx context.Context, key store.KeywordCacheKey, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.store.PutKeywordCache(ctx, key, data, s.now().Add(s.ttl)); err != nil {
		s.logger.Warn("keyword cache write failed", zap.String("keyword", key.Keyword), zap.Error(err))
	}
}

func (s *Service) save(ctx context.Context, orgID, userID string, req Request, resp *Response) (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.Join(req.Keywords, ", ")
		if len(name) > 120 {
			name = name[:120]
		}
	}
	summary, _ := json.Marshal(resp.Summary)

	research := store.KeywordResearch{
		ID:             util.NewID(),
		OrganizationID: orgID,
		CreatedBy:      userID,
		Name:           name,
		SeedKeywords:   req.Keywords,
		Location:       req.Location,
		Language:       req.Language,
		SearchType:     req.SearchType,
		Summary:        summary,
	}
	for _, metric := range resp.Results {
		trend, _ := json.Marshal(metric.MonthlySearches)
		research.Terms = append(research.Terms, store.KeywordTerm{
			ID:               util.NewID(),
			Keyword:          metric.Keyword,
			SearchVolume:     metric.SearchVolume,
			CPC:              metric.CPC,
			Competition:      metric.Competition,
			CompetitionIndex: metric.CompetitionIndex,
			Difficulty:       metric.Difficulty,
			SearchIntent:     metric.SearchIntent,
			Trend:            trend,
		})
	}
	if err := s.store.SaveKeywordResearch(ctx, research); err != nil {
		return "", err
	}
	return research.ID, nil
}

func summarize(results []dataforseo.KeywordMetric) Summary {
	summary := Summary{TotalKeywords: len(results)}
	if len(results) == 0 {
		return summary
	}
	var cpc, difficulty float64
	var top int64 = -1
	for _, metric := range results {
		summary.TotalVolume += metric.SearchVolume
		cpc += metric.CPC
		difficulty += float64(metric.Difficulty)
		if metric.SearchVolume > top {
			top = metric.SearchVolume
			summary.TopKeyword = metric.Keyword
		}
	}
	n := float64(len(results))
	summary.AverageCPC = round2(cpc / n)
	summary.AverageDifficulty = round2(difficulty / n)
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
