package interlink

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"blogwriter/api/internal/store"
)

type fakeStore struct {
	posts    map[string]store.BlogPost
	clusters []store.ContentCluster
	links    []store.InternalLink
}

func (f *fakeStore) GetPost(_ context.Context, _ string, postID string) (store.BlogPost, error) {
	post, ok := f.posts[postID]
	if !ok {
		return store.BlogPost{}, sql.ErrNoRows
	}
	return post, nil
}

func (f *fakeStore) ListAllPosts(context.Context, string) ([]store.BlogPost, error) {
	out := make([]store.BlogPost, 0, len(f.posts))
	for _, id := range []string{"a", "b", "c"} {
		if post, ok := f.posts[id]; ok {
			out = append(out, post)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceClusters(_ context.Context, _ string, clusters []store.ContentCluster) error {
	f.clusters = clusters
	return nil
}

func (f *fakeStore) ListClusters(context.Context, string) ([]store.ContentCluster, error) {
	return f.clusters, nil
}

func (f *fakeStore) ListLinks(context.Context, string) ([]store.InternalLink, error) {
	return f.links, nil
}

func (f *fakeStore) UpsertLink(_ context.Context, link store.InternalLink) (string, error) {
	f.links = append(f.links, link)
	return link.ID, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: map[string]store.BlogPost{
		"a": {ID: "a", Title: "Tomato pruning", Keywords: []string{"tomato"}, Content: "tomato pruning guide with many many words here", Status: store.PostStatusPublished},
		"b": {ID: "b", Title: "Tomato watering", Keywords: []string{"tomato"}, Content: "tomato watering", Status: store.PostStatusPublished},
		"c": {ID: "c", Title: "Espresso brewing", Keywords: []string{"coffee"}, Content: "espresso shots", Status: store.PostStatusDraft},
	}}
}

func TestRebuildReplacesClusters(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, nil)

	analysis, err := svc.Rebuild(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if len(st.clusters) != 1 || st.clusters[0].PillarPostID != "a" || st.clusters[0].OrganizationID != "org-1" {
		t.Fatalf("unexpected stored clusters %+v", st.clusters)
	}
	if analysis.Clusters[0].ID != st.clusters[0].ID {
		t.Fatal("expected analysis to carry stored cluster ids")
	}
}

func TestOpportunitiesSkipLinkedTargets(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, nil)
	if _, err := svc.Rebuild(context.Background(), "org-1"); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	got, err := svc.Opportunities(context.Background(), "org-1", "b", 5)
	if err != nil {
		t.Fatalf("Opportunities() error = %v", err)
	}
	if len(got) != 1 || got[0].TargetID != "a" {
		t.Fatalf("expected a as the only target, got %+v", got)
	}

	st.links = []store.InternalLink{{SourcePostID: "b", TargetPostID: "a", Status: store.LinkAccepted}}
	got, err = svc.Opportunities(context.Background(), "org-1", "b", 5)
	if err != nil {
		t.Fatalf("Opportunities() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected linked target to be skipped, got %+v", got)
	}
}

func TestRecordLinkValidates(t *testing.T) {
	svc := NewService(newFakeStore(), nil)
	ctx := context.Background()

	var validation *ValidationError
	if _, err := svc.RecordLink(ctx, "org-1", LinkInput{SourcePostID: "a", TargetPostID: "a"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for self link, got %v", err)
	}
	if _, err := svc.RecordLink(ctx, "org-1", LinkInput{SourcePostID: "a", TargetPostID: "b", Status: "maybe"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for status, got %v", err)
	}
	if _, err := svc.RecordLink(ctx, "org-1", LinkInput{SourcePostID: "a", TargetPostID: "missing"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}

	link, err := svc.RecordLink(ctx, "org-1", LinkInput{SourcePostID: "a", TargetPostID: "b", AnchorText: " tomato "})
	if err != nil {
		t.Fatalf("RecordLink() error = %v", err)
	}
	if link.Status != store.LinkSuggested || link.AnchorText != "tomato" {
		t.Fatalf("unexpected link %+v", link)
	}
}
