package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "user-123", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	userID, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("expected user ID user-123, got %s", userID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "expiring", "user-456", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := store.LookupRefreshSession(ctx, "expiring"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.SaveRefreshSession(context.Background(), "old", "user", time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected error for past expiry")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "revoke-me", "user-789", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "revoke-me"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "revoke-me"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
}

func TestJobCacheExpiresAfterTTL(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewJobCache(client, 2*time.Second)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "job-1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "job-1", []byte(`{"status":"processing"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	raw, ok, err := cache.Get(ctx, "job-1")
	if err != nil || !ok || string(raw) != `{"status":"processing"}` {
		t.Fatalf("unexpected cache read ok=%v err=%v raw=%s", ok, err, raw)
	}

	s.FastForward(3 * time.Second)
	if _, ok, _ := cache.Get(ctx, "job-1"); ok {
		t.Fatal("expected snapshot to expire")
	}
}
