package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"blogwriter/api/internal/publish"
	"blogwriter/api/internal/store"
)

type fakeStore struct {
	items map[string]store.Integration
}

func (f *fakeStore) ListIntegrations(context.Context, string) ([]store.Integration, error) {
	out := []store.Integration{}
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeStore) GetIntegration(_ context.Context, _ string, id string) (store.Integration, error) {
	item, ok := f.items[id]
	if !ok {
		return store.Integration{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) InsertIntegration(_ context.Context, item store.Integration) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateIntegration(_ context.Context, item store.Integration) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeStore) DeleteIntegration(_ context.Context, _ string, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeStore) SetDefaultIntegration(_ context.Context, _ string, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	for key, item := range f.items {
		item.IsDefault = key == id
		f.items[key] = item
	}
	return nil
}

func (f *fakeStore) RecordIntegrationTest(_ context.Context, _ string, id, status string, at time.Time) error {
	item := f.items[id]
	item.Status, item.LastTestedAt = status, &at
	f.items[id] = item
	return nil
}

type fakePublisher struct{ err error }

func (f fakePublisher) Publish(context.Context, publish.PublishInput) (publish.PublishResult, error) {
	return publish.PublishResult{}, nil
}

func (f fakePublisher) Test(context.Context) error {
	return f.err
}

func (f fakePublisher) Platform() string {
	return publish.PlatformWebflow
}

func newService(st *fakeStore, testErr error) *Service {
	return NewService(st, func(string, json.RawMessage) (publish.Publisher, error) {
		return fakePublisher{err: testErr}, nil
	}, nil)
}

const webflowConfig = `{"api_token":"wf-secret-9876","collection_id":"col-1"}`

func TestCreateValidatesAndRedacts(t *testing.T) {
	st := &fakeStore{items: map[string]store.Integration{}}
	svc := newService(st, nil)
	ctx := context.Background()

	var cfgErr *publish.ConfigError
	if _, err := svc.Create(ctx, "org-1", Input{Provider: "webflow", Config: json.RawMessage(`{}`)}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected config error, got %v", err)
	}

	item, err := svc.Create(ctx, "org-1", Input{Provider: "Webflow", Config: json.RawMessage(webflowConfig), IsDefault: true})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !item.IsDefault || item.Provider != "webflow" || item.Name != "webflow" {
		t.Fatalf("unexpected integration %+v", item)
	}
	if strings.Contains(string(item.Config), "wf-secret") || !strings.Contains(string(item.Config), "9876") {
		t.Fatalf("expected redacted token, got %s", item.Config)
	}
	if !strings.Contains(string(st.items[item.ID].Config), "wf-secret-9876") {
		t.Fatal("stored config must keep the real secret")
	}
}

func TestUpdateKeepsMaskedSecret(t *testing.T) {
	st := &fakeStore{items: map[string]store.Integration{
		"int-1": {ID: "int-1", Provider: publish.PlatformWebflow, Name: "Site", Config: json.RawMessage(webflowConfig)},
	}}
	svc := newService(st, nil)

	_, err := svc.Update(context.Background(), "org-1", "int-1", Input{
		Name:   "Renamed",
		Config: json.RawMessage(`{"api_token":"••••9876","collection_id":"col-2"}`),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	stored := string(st.items["int-1"].Config)
	if !strings.Contains(stored, "wf-secret-9876") || !strings.Contains(stored, "col-2") {
		t.Fatalf("unexpected stored config %s", stored)
	}
	if st.items["int-1"].Name != "Renamed" {
		t.Fatalf("expected rename, got %q", st.items["int-1"].Name)
	}
}

func TestTestRecordsStatus(t *testing.T) {
	st := &fakeStore{items: map[string]store.Integration{
		"int-1": {ID: "int-1", Provider: publish.PlatformWebflow, Config: json.RawMessage(webflowConfig)},
	}}

	result, err := newService(st, errors.New("401 unauthorized")).Test(context.Background(), "org-1", "int-1")
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if result.Connected || result.Integration.Status != StatusError || result.Integration.LastTestedAt == nil {
		t.Fatalf("unexpected failed test result %+v", result)
	}

	result, err = newService(st, nil).Test(context.Background(), "org-1", "int-1")
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if !result.Connected || result.Integration.Status != StatusConnected {
		t.Fatalf("unexpected test result %+v", result)
	}
}

func TestSetDefaultMissing(t *testing.T) {
	svc := newService(&fakeStore{items: map[string]store.Integration{}}, nil)
	if _, err := svc.SetDefault(context.Background(), "org-1", "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}
}
