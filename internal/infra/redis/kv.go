package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/faultline/internal/infra/storage"
)

const defaultPrefix = "faultline"

// Store implements storage.KV with plain Redis strings under a key prefix.
type Store struct {
	client *Client
	prefix string
}

// NewStore creates a Redis-backed KV store.
func NewStore(client *Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Key helpers
func (s *Store) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *Store) stripKey(full string) string {
	return strings.TrimPrefix(full, s.prefix+":")
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.rdb.Get(ctx, s.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.rdb.Set(ctx, s.fullKey(key), value, 0).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("set failed: %w", storage.ErrCapacityExceeded)
		}
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.rdb.Del(ctx, s.fullKey(key)).Err()
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx, "")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, s.stripKey(k))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.rdb.Scan(ctx, 0, s.fullKey(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return keys, nil
}

// isOOM matches the error Redis returns when maxmemory is reached.
func isOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}
