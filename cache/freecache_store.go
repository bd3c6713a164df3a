package cache

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/tablex/cache/serializer"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// 缓存空间大小（字节），最小 512KB
	Size int `cfg:"size" def:"33554432"`

	// 默认 TTL
	DefaultTTL time.Duration `cfg:"defaultTTL"`

	// 键的序列化选项
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`

	// 值的序列化选项
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

type FreeCacheStore[K comparable, V any] struct {
	cache         *freecache.Cache
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
}

func NewFreeCacheStoreWithOptions[K comparable, V any](options *FreeCacheStoreOptions) (*FreeCacheStore[K, V], error) {
	if options == nil {
		options = &FreeCacheStoreOptions{}
	}
	if options.Size == 0 {
		options.Size = 32 * 1024 * 1024
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, err
	}

	valSerializer, err := serializer.NewByteSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, err
	}

	return &FreeCacheStore[K, V]{
		cache:         freecache.NewCache(options.Size),
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *FreeCacheStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return err
	}

	valueBytes, err := s.valSerializer.Serialize(value)
	if err != nil {
		return err
	}

	if options.IfNotExist {
		if _, err := s.cache.Get(keyBytes); err == nil {
			return ErrConditionFailed
		}
	}

	expiration := options.Expiration
	if expiration == 0 && s.defaultTTL > 0 {
		expiration = s.defaultTTL
	}
	return s.cache.Set(keyBytes, valueBytes, int(expiration.Seconds()))
}

func (s *FreeCacheStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, err
	}

	valueBytes, err := s.cache.Get(keyBytes)
	if err != nil {
		return zero, ErrKeyNotFound
	}

	return s.valSerializer.Deserialize(valueBytes)
}

func (s *FreeCacheStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return err
	}

	s.cache.Del(keyBytes)
	return nil
}

func (s *FreeCacheStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Set(ctx, key, vals[i], opts...)
	}
	return errs, nil
}

func (s *FreeCacheStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		values[i], errs[i] = s.Get(ctx, key)
	}
	return values, errs, nil
}

func (s *FreeCacheStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Del(ctx, key)
	}
	return errs, nil
}

func (s *FreeCacheStore[K, V]) Close() error {
	s.cache.Clear()
	return nil
}
