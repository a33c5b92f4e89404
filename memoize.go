package remparo

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/ambiyansyah-risyal/remparo/internal/singleflight"
)

// MemoFunc is the shape of a function eligible for memoization: a name-level
// operation over opaque arguments, e.g. a query or an expensive computation.
type MemoFunc[T any] func(ctx context.Context, args ...any) (T, error)

// MemoKey builds a deterministic cache key from a prefix, a function name
// and its arguments. Arguments are JSON-serialized in the order given and
// hashed, so positionally reordered or differently spelled calls produce
// distinct keys even when logically identical.
func MemoKey(prefix, name string, args ...any) string {
	payload, err := json.Marshal(args)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", args))
	}
	h := fnv.New64a()
	h.Write(payload)
	return prefix + ":" + name + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Memoize wraps fn so that calls with identical arguments within ttl return
// the cached result without re-invoking it. Concurrent identical calls are
// coalesced: one execution runs, the rest wait for its result. Errors are
// never cached.
func Memoize[T any](cache *Cache, name string, ttl time.Duration, fn MemoFunc[T]) MemoFunc[T] {
	group := singleflight.New()

	return func(ctx context.Context, args ...any) (T, error) {
		key := MemoKey("memo", name, args...)

		if cached, ok := cache.Get(key); ok {
			if value, ok := cached.(T); ok {
				return value, nil
			}
		}

		result, err := group.Do(key, func() (interface{}, error) {
			// A waiter released just after the owner stored the result
			// lands here; check the cache once more before computing.
			if cached, ok := cache.Get(key); ok {
				return cached, nil
			}

			value, err := fn(ctx, args...)
			if err != nil {
				return nil, err
			}
			cache.Set(key, value, ttl)
			return value, nil
		})

		if err != nil {
			var zero T
			return zero, err
		}

		value, ok := result.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("remparo: memoized value for %q has unexpected type %T", name, result)
		}
		return value, nil
	}
}
