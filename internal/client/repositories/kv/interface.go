package kv

import "context"

// Repository is the minimal raw store. Get returns (nil, nil) for an absent
// key; Delete of an absent key is not an error.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Swapper is implemented by stores that can replace a value atomically.
//
// CompareAndSwap writes next only if the stored value equals old. A nil old
// means "only if absent". It reports whether the write happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error)
}

// PrefixDeleter removes every key starting with prefix and returns how many
// were removed.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}
