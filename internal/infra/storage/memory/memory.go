package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vietddude/faultline/internal/infra/storage"
)

// Storage is an in-process KV store with an optional byte quota, mirroring a
// browser-style local store.
type Storage struct {
	mu    sync.RWMutex
	data  map[string][]byte
	size  int
	quota int
}

// NewStorage creates a store. quota <= 0 means unlimited.
func NewStorage(quota int) *Storage {
	return &Storage{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newSize := s.size - entrySize(key, s.data[key]) + entrySize(key, value)
	if s.quota > 0 && newSize > s.quota {
		return storage.ErrCapacityExceeded
	}

	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	s.size = newSize
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		s.size -= entrySize(key, v)
		delete(s.data, key)
	}
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	s.size = 0
	return nil
}

func (s *Storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of bytes currently counted against the quota.
func (s *Storage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Storage) Close() error { return nil }

func entrySize(key string, value []byte) int {
	if value == nil {
		return 0
	}
	return len(key) + len(value)
}
