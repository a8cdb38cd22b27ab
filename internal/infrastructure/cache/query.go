package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Result is a typed view of a cached query
type Result[T any] struct {
	Data      T
	Stale     bool
	UpdatedAt time.Time
}

// Query reads key through the cache, calling fn on a miss. The value returned
// by fn is stored as JSON so that optimistic patches can operate on it.
func Query[T any](ctx context.Context, r Reader, key Key, fn func(ctx context.Context) (T, error)) (Result[T], error) {
	var zero Result[T]

	entry, err := r.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var data T
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		return zero, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return Result[T]{Data: data, Stale: entry.Stale, UpdatedAt: entry.UpdatedAt}, nil
}

// Get decodes a cached entry without fetching
func Get[T any](r Reader, key Key) (T, bool, error) {
	var data T
	entry, ok := r.Peek(key)
	if !ok {
		return data, false, nil
	}
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		return data, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return data, true, nil
}

// Put encodes v and stores it under key
func Put[T any](w Writer, key Key, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.Set(key, data)
}
