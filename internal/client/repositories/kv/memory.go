package kv

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/casekeeper/internal/common"
)

type MemoryRepository struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	return common.CloneBytes(v), nil
}

func (r *MemoryRepository) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[key] = common.CloneBytes(value)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, key)
	return nil
}

func (r *MemoryRepository) CompareAndSwap(_ context.Context, key string, old, next []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.data[key]
	if old == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, old) {
		return false, nil
	}

	r.data[key] = common.CloneBytes(next)
	return true, nil
}

func (r *MemoryRepository) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			delete(r.data, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored keys.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Keys returns the stored keys in sorted order.
func (r *MemoryRepository) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.data))
}

var (
	_ Repository    = (*MemoryRepository)(nil)
	_ Swapper       = (*MemoryRepository)(nil)
	_ PrefixDeleter = (*MemoryRepository)(nil)
)
