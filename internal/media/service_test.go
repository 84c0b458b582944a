package media

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"

	"blogwriter/api/internal/store"
)

type fakeStore struct {
	assets map[string]store.MediaAsset
}

func (f *fakeStore) InsertMediaAsset(_ context.Context, item store.MediaAsset) error {
	f.assets[item.ID] = item
	return nil
}

func (f *fakeStore) GetMediaAsset(_ context.Context, _ string, id string) (store.MediaAsset, error) {
	item, ok := f.assets[id]
	if !ok {
		return store.MediaAsset{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListMediaAssets(context.Context, string, int) ([]store.MediaAsset, error) {
	out := []store.MediaAsset{}
	for _, item := range f.assets {
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeStore) DeleteMediaAsset(_ context.Context, _ string, id string) error {
	delete(f.assets, id)
	return nil
}

type fakeProvider struct {
	uploaded     []UploadInput
	deleted      []string
	deletedTypes []string
}

func (f *fakeProvider) Upload(_ context.Context, input UploadInput) (Asset, error) {
	data, _ := io.ReadAll(input.Body)
	input.Body = bytes.NewReader(data)
	f.uploaded = append(f.uploaded, input)
	return Asset{PublicID: "pub/" + input.FileName, URL: "https://cdn.test/" + input.FileName, Folder: "pub"}, nil
}

func (f *fakeProvider) Delete(_ context.Context, publicID, contentType string) error {
	f.deleted = append(f.deleted, publicID)
	f.deletedTypes = append(f.deletedTypes, contentType)
	return nil
}

func (f *fakeProvider) List(context.Context, string, int) ([]Asset, error) {
	return nil, nil
}

func (f *fakeProvider) Name() string {
	return "fake"
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadStoresSniffedImage(t *testing.T) {
	st := &fakeStore{assets: map[string]store.MediaAsset{}}
	provider := &fakeProvider{}
	svc := NewService(st, provider, nil)

	item, err := svc.Upload(context.Background(), "org-1", "user-1", "pixel.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if item.MimeType != "image/png" || item.Width != 3 || item.Height != 2 {
		t.Fatalf("unexpected asset %+v", item)
	}
	if item.Provider != "fake" || item.UploadedBy != "user-1" {
		t.Fatalf("unexpected ownership %+v", item)
	}
	if len(provider.uploaded) != 1 || provider.uploaded[0].OrganizationID != "org-1" {
		t.Fatalf("unexpected provider calls %+v", provider.uploaded)
	}
	if _, ok := st.assets[item.ID]; !ok {
		t.Fatal("expected asset row")
	}
}

func TestUploadRejections(t *testing.T) {
	svc := NewService(&fakeStore{assets: map[string]store.MediaAsset{}}, &fakeProvider{}, nil)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, "org-1", "u", "notes.txt", bytes.NewReader([]byte("plain text"))); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	big := append(pngBytes(t), make([]byte, MaxUploadBytes)...)
	if _, err := svc.Upload(ctx, "org-1", "u", "big.png", bytes.NewReader(big)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if _, err := svc.Upload(ctx, "org-1", "u", "empty.png", bytes.NewReader(nil)); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected empty file, got %v", err)
	}

	disabled := NewService(&fakeStore{}, nil, nil)
	if _, err := disabled.Upload(ctx, "org-1", "u", "a.png", bytes.NewReader(pngBytes(t))); !errors.Is(err, ErrProviderDisabled) {
		t.Fatalf("expected provider disabled, got %v", err)
	}
}

func TestDeleteRemovesRemoteThenRow(t *testing.T) {
	st := &fakeStore{assets: map[string]store.MediaAsset{"a1": {ID: "a1", PublicID: "pub/a.mp4", MimeType: "video/mp4"}}}
	provider := &fakeProvider{}
	svc := NewService(st, provider, nil)

	if err := svc.Delete(context.Background(), "org-1", "a1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "pub/a.mp4" || provider.deletedTypes[0] != "video/mp4" {
		t.Fatalf("unexpected provider deletes %v %v", provider.deleted, provider.deletedTypes)
	}
	if _, ok := st.assets["a1"]; ok {
		t.Fatal("expected asset row removed")
	}
	if err := svc.Delete(context.Background(), "org-1", "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}
}
