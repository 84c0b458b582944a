package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/store"
)

type fakeStore struct {
	post    store.BlogPost
	updates int
}

func (f *fakeStore) GetPost(context.Context, string, string) (store.BlogPost, error) {
	return f.post, nil
}

func (f *fakeStore) UpdatePost(_ context.Context, post store.BlogPost) error {
	f.post = post
	f.updates++
	return nil
}

type fakeTagger struct {
	tags metatags.Tags
}

func (f fakeTagger) Generate(context.Context, store.BlogPost) metatags.Tags {
	return f.tags
}

type fakeLinker struct {
	opportunities []interlink.Opportunity
	err           error
}

func (f fakeLinker) OpportunitiesFor(context.Context, string, store.BlogPost, int) ([]interlink.Opportunity, error) {
	return f.opportunities, f.err
}

func newManager(st *fakeStore, linker fakeLinker) *Manager {
	tags := metatags.Tags{
		MetaTitle:       "Balcony tomatoes",
		MetaDescription: strings.Repeat("x", 140),
		Source:          metatags.SourceFallback,
	}
	m := NewManager(st, fakeTagger{tags: tags}, linker, nil)
	m.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestPhasesMustRunInOrder(t *testing.T) {
	st := &fakeStore{post: store.BlogPost{ID: "p1", Title: "Balcony tomatoes"}}
	m := newManager(st, fakeLinker{})
	ctx := context.Background()

	if _, err := m.Draft(ctx, "org-1", "p1", DraftInput{}); !errors.Is(err, ErrPhaseOutOfOrder) {
		t.Fatalf("expected out of order for drafting, got %v", err)
	}
	if _, err := m.Optimize(ctx, "org-1", "p1"); !errors.Is(err, ErrPhaseOutOfOrder) {
		t.Fatalf("expected out of order for optimization, got %v", err)
	}
	if st.updates != 0 {
		t.Fatalf("expected no writes, got %d", st.updates)
	}
}

func TestResearchMergesKeywords(t *testing.T) {
	st := &fakeStore{post: store.BlogPost{ID: "p1", Title: "Tomatoes", Keywords: []string{"tomatoes"}, Metadata: json.RawMessage(`{"custom":true}`)}}
	m := newManager(st, fakeLinker{})

	result, err := m.Research(context.Background(), "org-1", "p1", ResearchInput{
		PrimaryKeyword:    "Balcony Tomatoes",
		SecondaryKeywords: []string{"tomatoes", " container garden ", ""},
	})
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	want := []string{"tomatoes", "Balcony Tomatoes", "container garden"}
	if !reflect.DeepEqual(result.Post.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", result.Post.Keywords, want)
	}
	if result.Workflow.CurrentPhase != PhaseDrafting {
		t.Fatalf("expected drafting next, got %q", result.Workflow.CurrentPhase)
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(st.post.Metadata, &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
	if string(meta["custom"]) != "true" {
		t.Fatal("expected unrelated metadata keys to be preserved")
	}
}

func TestResearchRequiresPrimaryKeyword(t *testing.T) {
	m := newManager(&fakeStore{}, fakeLinker{})
	var validation *ValidationError
	if _, err := m.Research(context.Background(), "org-1", "p1", ResearchInput{}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFullWorkflowScoresPost(t *testing.T) {
	st := &fakeStore{post: store.BlogPost{ID: "p1", Title: "Growing balcony tomatoes"}}
	m := newManager(st, fakeLinker{opportunities: []interlink.Opportunity{{TargetID: "p2", Score: 30}}})
	ctx := context.Background()

	if _, err := m.Research(ctx, "org-1", "p1", ResearchInput{PrimaryKeyword: "balcony tomatoes"}); err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	content := "Balcony tomatoes are easy. " + strings.Repeat("word ", 1200)
	draft, err := m.Draft(ctx, "org-1", "p1", DraftInput{Content: &content})
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if draft.Workflow.Drafting.ReadingTimeMinutes != 7 {
		t.Fatalf("expected 7 minute read, got %d", draft.Workflow.Drafting.ReadingTimeMinutes)
	}

	result, err := m.Optimize(ctx, "org-1", "p1")
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if result.Post.SEOScore != 100 {
		t.Fatalf("expected full score, got %d (%+v)", result.Post.SEOScore, result.Workflow.Optimization.Checklist)
	}
	if result.Workflow.CurrentPhase != PhaseComplete {
		t.Fatalf("expected complete, got %q", result.Workflow.CurrentPhase)
	}

	meta, err := Metadata(st.post.Metadata)
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if _, ok := meta["seo"]; !ok {
		t.Fatal("expected seo metadata to be stored")
	}
}

func TestOptimizeToleratesLinkFailure(t *testing.T) {
	st := &fakeStore{post: store.BlogPost{ID: "p1", Title: "Other title", Content: "short"}}
	m := newManager(st, fakeLinker{err: errors.New("db down")})
	ctx := context.Background()

	if _, err := m.Research(ctx, "org-1", "p1", ResearchInput{PrimaryKeyword: "balcony"}); err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	if _, err := m.Draft(ctx, "org-1", "p1", DraftInput{}); err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	result, err := m.Optimize(ctx, "org-1", "p1")
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	// only the meta description check passes
	if result.Post.SEOScore != 20 {
		t.Fatalf("expected score 20, got %d", result.Post.SEOScore)
	}
}

func TestRunRejectsUnknownPhase(t *testing.T) {
	m := newManager(&fakeStore{}, fakeLinker{})
	if _, err := m.Run(context.Background(), "org-1", "p1", "publishing", nil); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected unknown phase, got %v", err)
	}
}
