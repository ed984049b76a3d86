package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/talkcoach/voicekit/voice"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStoreFromClient(client, "voicekit:", time.Hour), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	if err := s.Set(ctx, "session", []byte(`{"mode":"none"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "session")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"mode":"none"}` {
		t.Errorf("Get() = %q, want %q", got, `{"mode":"none"}`)
	}
}

func TestRedisStoreMissingKey(t *testing.T) {
	s, _ := newTestRedisStore(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, voice.ErrNotFound) {
		t.Errorf("Get() error = %v, want %v", err, voice.ErrNotFound)
	}
}

func TestRedisStoreRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, voice.ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want %v", err, voice.ErrNotFound)
	}
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("voicekit:k") {
		t.Error("value not stored under prefixed key")
	}
	if mr.Exists("k") {
		t.Error("value stored under unprefixed key")
	}
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := mr.TTL("voicekit:k"); ttl != time.Hour {
		t.Errorf("TTL = %v, want %v", ttl, time.Hour)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, voice.ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want %v", err, voice.ErrNotFound)
	}
}
