package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type MapStoreOptions struct {
	// 默认 TTL，0 表示不过期
	DefaultTTL time.Duration `cfg:"defaultTTL"`
}

// MapStore 进程内缓存，基于 sync.Map，支持按条目过期。
// 过期条目在读取时惰性清理。
type MapStore[K comparable, V any] struct {
	m          sync.Map
	defaultTTL time.Duration
}

type mapEntry[V any] struct {
	value    V
	expireAt time.Time
}

func (e *mapEntry[V]) expired() bool {
	return !e.expireAt.IsZero() && time.Now().After(e.expireAt)
}

func NewMapStoreWithOptions[K comparable, V any](options *MapStoreOptions) *MapStore[K, V] {
	if options == nil {
		options = &MapStoreOptions{}
	}
	return &MapStore[K, V]{
		defaultTTL: options.DefaultTTL,
	}
}

func (s *MapStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.IfNotExist {
		if v, exists := s.m.Load(key); exists {
			if entry, ok := v.(*mapEntry[V]); ok && !entry.expired() {
				return ErrConditionFailed
			}
		}
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	entry := &mapEntry[V]{value: value}
	if expiration > 0 {
		entry.expireAt = time.Now().Add(expiration)
	}

	s.m.Store(key, entry)
	return nil
}

func (s *MapStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	v, exists := s.m.Load(key)
	if !exists {
		return zero, ErrKeyNotFound
	}

	entry, ok := v.(*mapEntry[V])
	if !ok {
		return zero, ErrKeyNotFound
	}
	if entry.expired() {
		s.m.Delete(key)
		return zero, ErrKeyNotFound
	}

	return entry.value, nil
}

func (s *MapStore[K, V]) Del(ctx context.Context, key K) error {
	s.m.Delete(key)
	return nil
}

func (s *MapStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Set(ctx, key, vals[i], opts...)
	}
	return errs, nil
}

func (s *MapStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		values[i], errs[i] = s.Get(ctx, key)
	}
	return values, errs, nil
}

func (s *MapStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Del(ctx, key)
	}
	return errs, nil
}

func (s *MapStore[K, V]) Close() error {
	s.m.Range(func(key, _ any) bool {
		s.m.Delete(key)
		return true
	})
	return nil
}
