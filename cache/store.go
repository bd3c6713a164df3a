package cache

import (
	"context"
	"time"

	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrConditionFailed = errors.New("condition failed")
)

// setOptions 用于设置缓存数据时的选项
type setOptions struct {
	Expiration time.Duration
	IfNotExist bool
}

type SetOption func(*setOptions)

func WithExpiration(expiration time.Duration) SetOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

func WithIfNotExist() SetOption {
	return func(options *setOptions) {
		options.IfNotExist = true
	}
}

// Store 缓存存储接口。表引擎通过 Gateway 访问它，不直接持有具体实现。
type Store[K comparable, V any] interface {
	// Set 设置键值对，WithIfNotExist 时键存在则返回 ErrConditionFailed
	Set(ctx context.Context, key K, value V, opts ...SetOption) error
	// Get 获取键对应的值，键不存在或已过期时返回 ErrKeyNotFound
	Get(ctx context.Context, key K) (V, error)
	// Del 删除键，键不存在时也返回成功
	Del(ctx context.Context, key K) error

	// BatchSet 批量设置键值对，keys 和 vals 长度不一致时整体失败。
	// 返回的错误切片与 keys 一一对应，单键失败不影响其他键
	BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error)
	// BatchGet 批量获取，values 和 errs 均与 keys 一一对应
	BatchGet(ctx context.Context, keys []K) ([]V, []error, error)
	// BatchDel 批量删除，返回的错误切片与 keys 一一对应
	BatchDel(ctx context.Context, keys []K) ([]error, error)

	Close() error
}

// NewStoreWithOptions 根据配置创建缓存存储。
func NewStoreWithOptions[K comparable, V any](options *ref.TypeOptions) (Store[K, V], error) {
	// 注册 store 类型
	ref.RegisterT[*MapStore[K, V]](NewMapStoreWithOptions[K, V])
	ref.RegisterT[*FreeCacheStore[K, V]](NewFreeCacheStoreWithOptions[K, V])
	ref.RegisterT[*RedisStore[K, V]](NewRedisStoreWithOptions[K, V])
	ref.RegisterT[*BoltDBStore[K, V]](NewBoltDBStoreWithOptions[K, V])
	ref.RegisterT[*PebbleStore[K, V]](NewPebbleStoreWithOptions[K, V])
	ref.RegisterT[*LevelDBStore[K, V]](NewLevelDBStoreWithOptions[K, V])
	ref.RegisterT[*TieredStore[K, V]](NewTieredStoreWithOptions[K, V])
	ref.RegisterT[*ObservableStore[K, V]](NewObservableStoreWithOptions[K, V])

	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	if obj == nil {
		return nil, errors.New("store is nil")
	}

	store, ok := obj.(Store[K, V])
	if !ok {
		return nil, errors.New("object is not a Store")
	}

	return store, nil
}
