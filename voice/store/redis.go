package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talkcoach/voicekit/voice"
)

// RedisStore persists values in Redis. Keys are namespaced so fallback state
// does not collide with the rest of the application's keyspace.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"VOICEKIT_REDIS_ADDR" envDefault:"localhost:6379"`
	Password string        `yaml:"password" env:"VOICEKIT_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"VOICEKIT_REDIS_DB" envDefault:"0"`
	Prefix   string        `yaml:"prefix" env:"VOICEKIT_REDIS_PREFIX" envDefault:"voicekit:"`
	TTL      time.Duration `yaml:"ttl" env:"VOICEKIT_REDIS_TTL" envDefault:"24h"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the value for key, or voice.ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, voice.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set writes the value for key with the store's TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

// Remove deletes the key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
