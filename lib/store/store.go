// Package store defines the key-value primitives the feed server persists
// through, plus the schema of keys it uses. The engine behind the interface
// is external; this package ships a Redis-backed client and an in-process
// implementation used by tests.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by read operations when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is the fixed set of primitives the feed server relies on. Scores are
// unix-millisecond timestamps throughout.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	// GetSet replaces the value at key and returns the previous value, or
	// ErrNotFound if the key was unset (the new value is written either way).
	GetSet(ctx context.Context, key, value string) (string, error)

	// SetNX writes the value only if the key is unset, reporting whether the
	// write happened.
	SetNX(ctx context.Context, key, value string) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	Incr(ctx context.Context, key string) (int64, error)

	// Batch applies every operation recorded by fn as a single atomic unit.
	Batch(ctx context.Context, fn func(b Batch)) error
}

// Batch records writes to be applied atomically.
type Batch interface {
	Set(key, value string)
	ZAdd(key string, score float64, member string)
}
