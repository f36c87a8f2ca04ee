package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dnjord/glasir-login/internal/session"
)

var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "glasir:session:"

// RedisStore keeps session records in redis, for deployments where several
// hosts share one session cache (e.g. a scraper fleet behind one profile
// set). Records have no TTL; validity is decided by the validator, not the
// backend.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(profile string) string {
	return redisKeyPrefix + profile
}

func (s *RedisStore) Get(ctx context.Context, profile string) (*session.Record, error) {
	data, err := s.client.Get(ctx, redisKey(profile)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing session from redis: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, profile string, rec *session.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(profile), data, 0).Err(); err != nil {
		return fmt.Errorf("writing session to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, profile string) error {
	n, err := s.client.Del(ctx, redisKey(profile)).Result()
	if err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Profiles(ctx context.Context) ([]string, error) {
	var profiles []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning redis keys: %w", err)
		}
		for _, key := range keys {
			profiles = append(profiles, strings.TrimPrefix(key, redisKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return profiles, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
