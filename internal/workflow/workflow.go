// Package workflow runs the research, drafting and optimization phases of a
// blog post. Progress lives in the post's metadata under "workflow".
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

const (
	PhaseResearch     = "research"
	PhaseDrafting     = "drafting"
	PhaseOptimization = "optimization"
	PhaseComplete     = "complete"

	linkSuggestionLimit = 5
)

var (
	ErrPhaseOutOfOrder = errors.New("phase out of order")
	ErrUnknownPhase    = errors.New("unknown workflow phase")
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Workflow struct {
	CurrentPhase string              `json:"current_phase"`
	Research     *ResearchRecord     `json:"research,omitempty"`
	Drafting     *DraftingRecord     `json:"drafting,omitempty"`
	Optimization *OptimizationRecord `json:"optimization,omitempty"`
}

type ResearchRecord struct {
	PrimaryKeyword    string    `json:"primary_keyword"`
	SecondaryKeywords []string  `json:"secondary_keywords"`
	SearchIntent      string    `json:"search_intent,omitempty"`
	ResearchID        string    `json:"research_id,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}

type DraftingRecord struct {
	WordCount          int       `json:"word_count"`
	ReadingTimeMinutes int       `json:"reading_time_minutes"`
	GenerationQueueID  string    `json:"generation_queue_id,omitempty"`
	CompletedAt        time.Time `json:"completed_at"`
}

type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
}

type OptimizationRecord struct {
	SEOScore        int                     `json:"seo_score"`
	Checklist       []CheckResult           `json:"checklist"`
	LinkSuggestions []interlink.Opportunity `json:"link_suggestions"`
	MetaSource      string                  `json:"meta_source"`
	CompletedAt     time.Time               `json:"completed_at"`
}

type ResearchInput struct {
	PrimaryKeyword    string   `json:"primary_keyword"`
	SecondaryKeywords []string `json:"secondary_keywords"`
	SearchIntent      string   `json:"search_intent"`
	ResearchID        string   `json:"research_id"`
}

type DraftInput struct {
	Content           *string `json:"content"`
	Excerpt           *string `json:"excerpt"`
	GenerationQueueID string  `json:"generation_queue_id"`
}

type Result struct {
	Post     store.BlogPost `json:"post"`
	Workflow Workflow       `json:"workflow"`
}

type Store interface {
	GetPost(ctx context.Context, orgID, postID string) (store.BlogPost, error)
	UpdatePost(ctx context.Context, post store.BlogPost) error
}

type MetaTagger interface {
	Generate(ctx context.Context, post store.BlogPost) metatags.Tags
}

type Linker interface {
	OpportunitiesFor(ctx context.Context, orgID string, post store.BlogPost, limit int) ([]interlink.Opportunity, error)
}

type Manager struct {
	store  Store
	meta   MetaTagger
	links  Linker
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(st Store, meta MetaTagger, links Linker, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: st, meta: meta, links: links, logger: logger, now: time.Now}
}

// Run decodes body for the named phase and executes it.
func (m *Manager) Run(ctx context.Context, orgID, postID, phase string, body []byte) (Result, error) {
	switch phase {
	case PhaseResearch:
		var input ResearchInput
		if err := decode(body, &input); err != nil {
			return Result{}, err
		}
		return m.Research(ctx, orgID, postID, input)
	case PhaseDrafting:
		var input DraftInput
		if err := decode(body, &input); err != nil {
			return Result{}, err
		}
		return m.Draft(ctx, orgID, postID, input)
	case PhaseOptimization:
		return m.Optimize(ctx, orgID, postID)
	default:
		return Result{}, ErrUnknownPhase
	}
}

func decode(body []byte, out any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ValidationError{Message: "invalid request body"}
	}
	return nil
}

func (m *Manager) Research(ctx context.Context, orgID, postID string, input ResearchInput) (Result, error) {
	primary := strings.TrimSpace(input.PrimaryKeyword)
	if primary == "" {
		return Result{}, &ValidationError{Message: "primary_keyword is required"}
	}
	post, meta, wf, err := m.load(ctx, orgID, postID)
	if err != nil {
		return Result{}, err
	}

	secondary := MergeKeywords(nil, input.SecondaryKeywords)
	wf.Research = &ResearchRecord{
		PrimaryKeyword:    primary,
		SecondaryKeywords: secondary,
		SearchIntent:      strings.TrimSpace(input.SearchIntent),
		ResearchID:        strings.TrimSpace(input.ResearchID),
		CompletedAt:       m.now().UTC(),
	}
	if wf.Drafting == nil {
		wf.CurrentPhase = PhaseDrafting
	}
	post.Keywords = MergeKeywords(post.Keywords, append([]string{primary}, secondary...))
	return m.save(ctx, post, meta, wf)
}

func (m *Manager) Draft(ctx context.Context, orgID, postID string, input DraftInput) (Result, error) {
	post, meta, wf, err := m.load(ctx, orgID, postID)
	if err != nil {
		return Result{}, err
	}
	if wf.Research == nil {
		return Result{}, ErrPhaseOutOfOrder
	}

	if input.Content != nil {
		post.Content = *input.Content
	}
	if input.Excerpt != nil {
		post.Excerpt = *input.Excerpt
	}
	post.WordCount = util.WordCount(post.Content)

	wf.Drafting = &DraftingRecord{
		WordCount:          post.WordCount,
		ReadingTimeMinutes: util.ReadingTime(post.WordCount),
		GenerationQueueID:  strings.TrimSpace(input.GenerationQueueID),
		CompletedAt:        m.now().UTC(),
	}
	if wf.Optimization == nil {
		wf.CurrentPhase = PhaseOptimization
	}
	return m.save(ctx, post, meta, wf)
}

func (m *Manager) Optimize(ctx context.Context, orgID, postID string) (Result, error) {
	post, meta, wf, err := m.load(ctx, orgID, postID)
	if err != nil {
		return Result{}, err
	}
	if wf.Research == nil || wf.Drafting == nil {
		return Result{}, ErrPhaseOutOfOrder
	}

	tags := m.meta.Generate(ctx, post)
	if err := SetSEO(meta, tags); err != nil {
		return Result{}, err
	}

	suggestions, err := m.links.OpportunitiesFor(ctx, orgID, post, linkSuggestionLimit)
	if err != nil {
		m.logger.Warn("link suggestions unavailable", zap.String("post_id", postID), zap.Error(err))
		suggestions = []interlink.Opportunity{}
	}

	checklist := Checklist(post, wf.Research.PrimaryKeyword, tags.MetaDescription, len(suggestions))
	score := 0
	for _, check := range checklist {
		if check.Passed {
			score += check.Points
		}
	}
	post.SEOScore = score

	wf.Optimization = &OptimizationRecord{
		SEOScore:        score,
		Checklist:       checklist,
		LinkSuggestions: suggestions,
		MetaSource:      tags.Source,
		CompletedAt:     m.now().UTC(),
	}
	wf.CurrentPhase = PhaseComplete
	return m.save(ctx, post, meta, wf)
}

// Checklist scores a post out of 100 in five checks of 20 points.
func Checklist(post store.BlogPost, primaryKeyword, metaDescription string, linkSuggestions int) []CheckResult {
	keyword := strings.ToLower(strings.TrimSpace(primaryKeyword))
	body := strings.ToLower(util.FirstWords(util.StripMarkup(post.Content), 100))
	descLen := utf8.RuneCountInString(metaDescription)
	words := post.WordCount
	if words == 0 {
		words = util.WordCount(post.Content)
	}

	return []CheckResult{
		{Name: "keyword_in_title", Points: 20, Passed: keyword != "" && strings.Contains(strings.ToLower(post.Title), keyword)},
		{Name: "keyword_in_intro", Points: 20, Passed: keyword != "" && strings.Contains(body, keyword)},
		{Name: "meta_description_length", Points: 20, Passed: descLen >= 120 && descLen <= 160},
		{Name: "word_count", Points: 20, Passed: words >= 1000},
		{Name: "internal_links", Points: 20, Passed: linkSuggestions > 0},
	}
}

// MergeKeywords appends additions to existing, dropping blanks and
// case-insensitive duplicates while keeping first-seen order.
func MergeKeywords(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing)+len(additions))
	out := make([]string, 0, len(existing)+len(additions))
	for _, list := range [][]string{existing, additions} {
		for _, keyword := range list {
			keyword = strings.TrimSpace(keyword)
			key := strings.ToLower(keyword)
			if keyword == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, keyword)
		}
	}
	return out
}

// SetSEO stores generated meta tags under metadata.seo.
func SetSEO(meta map[string]json.RawMessage, tags metatags.Tags) error {
	raw, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode seo metadata: %w", err)
	}
	meta["seo"] = raw
	return nil
}

// Metadata splits raw post metadata into top-level keys.
func Metadata(raw json.RawMessage) (map[string]json.RawMessage, error) {
	meta := make(map[string]json.RawMessage)
	if len(raw) == 0 || string(raw) == "null" {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode post metadata: %w", err)
	}
	return meta, nil
}

func (m *Manager) load(ctx context.Context, orgID, postID string) (store.BlogPost, map[string]json.RawMessage, Workflow, error) {
	post, err := m.store.GetPost(ctx, orgID, postID)
	if err != nil {
		return store.BlogPost{}, nil, Workflow{}, err
	}
	meta, err := Metadata(post.Metadata)
	if err != nil {
		return store.BlogPost{}, nil, Workflow{}, err
	}
	wf := Workflow{CurrentPhase: PhaseResearch}
	if raw, ok := meta["workflow"]; ok {
		if err := json.Unmarshal(raw, &wf); err != nil {
			return store.BlogPost{}, nil, Workflow{}, fmt.Errorf("decode workflow: %w", err)
		}
	}
	return post, meta, wf, nil
}

func (m *Manager) save(ctx context.Context, post store.BlogPost, meta map[string]json.RawMessage, wf Workflow) (Result, error) {
	raw, err := json.Marshal(wf)
	if err != nil {
		return Result{}, fmt.Errorf("encode workflow: %w", err)
	}
	meta["workflow"] = raw
	encoded, err := json.Marshal(meta)
	if err != nil {
		return Result{}, fmt.Errorf("encode post metadata: %w", err)
	}
	post.Metadata = encoded
	if err := m.store.UpdatePost(ctx, post); err != nil {
		return Result{}, err
	}
	return Result{Post: post, Workflow: wf}, nil
}
