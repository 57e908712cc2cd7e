package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gofile/internal/core"
)

// DefaultRedisPrefix namespaces all file store keys in Redis.
const DefaultRedisPrefix = "gofile"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix namespaces the store's keys (defaults to "gofile")
	Prefix string
}

// RedisStore stores file records and content in Redis.
// Each file lives in a hash with "meta" and "content" fields; a sorted
// set scored by created_at serves as the listing index. Files with an
// expiry get a native EXPIREAT so Redis drops them on its own.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	slog.Info("redis file store connected", "prefix", prefix)

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) fileKey(id string) string {
	return s.prefix + ":file:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":files"
}

// Create stores a new file record with its content.
func (s *RedisStore) Create(ctx context.Context, file *core.FileObject, content []byte) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	key := s.fileKey(file.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check file exists: %w", err)
	}
	if exists > 0 {
		return ErrExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "meta", payload, "content", content)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(file.CreatedAt), Member: file.ID})
	if file.ExpiresAt != nil {
		pipe.ExpireAt(ctx, key, time.Unix(*file.ExpiresAt, 0))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store file: %w", err)
	}
	return nil
}

// Get retrieves one file record by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.FileObject, error) {
	payload, err := s.client.HGet(ctx, s.fileKey(id), "meta").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// The hash may have expired out from under the index.
			_ = s.client.ZRem(ctx, s.indexKey(), id).Err()
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file: %w", err)
	}

	file, err := deserializeFile(payload)
	if err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	if isExpired(file, time.Now().Unix()) {
		s.purge(ctx, id)
		return nil, ErrNotFound
	}
	return file, nil
}

// GetContent returns the raw content of a stored file.
func (s *RedisStore) GetContent(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	content, err := s.client.HGet(ctx, s.fileKey(id), "content").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file content: %w", err)
	}
	return content, nil
}

// List returns one page of file records ordered by created_at.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]*core.FileObject, bool, error) {
	limit := normalizeLimit(filter.Limit)
	now := time.Now().Unix()

	ascending := filter.Order == "asc"
	var ids []string
	var err error
	if ascending {
		ids, err = s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	} else {
		ids, err = s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	}
	if err != nil {
		return nil, false, fmt.Errorf("list file index: %w", err)
	}

	all := make([]*core.FileObject, 0, len(ids))
	for _, id := range ids {
		payload, err := s.client.HGet(ctx, s.fileKey(id), "meta").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired hash, drop the stale index entry.
				_ = s.client.ZRem(ctx, s.indexKey(), id).Err()
				continue
			}
			return nil, false, fmt.Errorf("query file %s: %w", id, err)
		}
		file, err := deserializeFile(payload)
		if err != nil {
			return nil, false, fmt.Errorf("decode file %s: %w", id, err)
		}
		if isExpired(file, now) {
			s.purge(ctx, id)
			continue
		}
		if filter.Purpose != "" && file.Purpose != filter.Purpose {
			continue
		}
		all = append(all, file)
	}

	return pageFiles(all, filter.After, limit)
}

// Update replaces an existing file record. Content is immutable.
func (s *RedisStore) Update(ctx context.Context, file *core.FileObject) error {
	payload, err := serializeFile(file)
	if err != nil {
		return err
	}

	if _, err := s.Get(ctx, file.ID); err != nil {
		return err
	}

	key := s.fileKey(file.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "meta", payload)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(file.CreatedAt), Member: file.ID})
	if file.ExpiresAt != nil {
		pipe.ExpireAt(ctx, key, time.Unix(*file.ExpiresAt, 0))
	} else {
		pipe.Persist(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

// Delete removes a file record and its content.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	s.purge(ctx, id)
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) purge(ctx context.Context, id string) {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.fileKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, _ = pipe.Exec(ctx)
}
