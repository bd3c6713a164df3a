package cache

import (
	"context"

	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

type TieredStoreOptions struct {
	// Tiers 多级存储层配置，按优先级从高到低排列。
	// 第一层应该是最快的缓存（如内存），最后一层是共享或持久化存储。
	Tiers []*ref.TypeOptions `cfg:"tiers" validate:"required,min=1,dive,required"`

	// WritePolicy 写入策略：
	// - "writeThrough": 同步写入所有层
	// - "writeBack": 只写入第一层，异步写入其他层
	WritePolicy string `cfg:"writePolicy" def:"writeThrough" validate:"oneof=writeThrough writeBack"`

	// Promote 从下层读到数据后是否异步提升到上层缓存
	Promote bool `cfg:"promote" def:"true"`
}

// TieredStore 多级缓存存储。典型用法是本地内存一层加 redis 一层，
// 同一份表数据在多实例间共享的同时保留进程内的快速路径。
type TieredStore[K comparable, V any] struct {
	tiers       []Store[K, V]
	writePolicy string
	promote     bool
}

func NewTieredStoreWithOptions[K comparable, V any](options *TieredStoreOptions) (*TieredStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if len(options.Tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}
	if options.WritePolicy == "" {
		options.WritePolicy = "writeThrough"
	}
	if options.WritePolicy != "writeThrough" && options.WritePolicy != "writeBack" {
		return nil, errors.Errorf("invalid write policy: %s", options.WritePolicy)
	}

	tiers := make([]Store[K, V], 0, len(options.Tiers))
	for i, tierOptions := range options.Tiers {
		tier, err := NewStoreWithOptions[K, V](tierOptions)
		if err != nil {
			for _, createdTier := range tiers {
				createdTier.Close()
			}
			return nil, errors.WithMessagef(err, "failed to create tier %d", i)
		}
		tiers = append(tiers, tier)
	}

	return &TieredStore[K, V]{
		tiers:       tiers,
		writePolicy: options.WritePolicy,
		promote:     options.Promote,
	}, nil
}

func (ts *TieredStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	switch ts.writePolicy {
	case "writeBack":
		if err := ts.tiers[0].Set(ctx, key, value, opts...); err != nil {
			return err
		}
		for _, tier := range ts.tiers[1:] {
			go func(tier Store[K, V]) {
				_ = tier.Set(context.Background(), key, value, opts...)
			}(tier)
		}
		return nil
	default:
		for i, tier := range ts.tiers {
			if err := tier.Set(ctx, key, value, opts...); err != nil {
				return errors.WithMessagef(err, "failed to set tier %d", i)
			}
		}
		return nil
	}
}

func (ts *TieredStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	for i, tier := range ts.tiers {
		value, err := tier.Get(ctx, key)
		if err == nil {
			// 下层命中后异步提升到上层
			if ts.promote && i > 0 {
				go func(upper []Store[K, V]) {
					for _, t := range upper {
						_ = t.Set(context.Background(), key, value)
					}
				}(ts.tiers[:i])
			}
			return value, nil
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return zero, err
		}
	}

	return zero, ErrKeyNotFound
}

func (ts *TieredStore[K, V]) Del(ctx context.Context, key K) error {
	var errs []error
	for i, tier := range ts.tiers {
		if err := tier.Del(ctx, key); err != nil {
			errs = append(errs, errors.WithMessagef(err, "tier %d", i))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("del errors: %v", errs)
	}
	return nil
}

func (ts *TieredStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = ts.Set(ctx, key, vals[i], opts...)
	}
	return errs, nil
}

func (ts *TieredStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		values[i], errs[i] = ts.Get(ctx, key)
	}
	return values, errs, nil
}

func (ts *TieredStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = ts.Del(ctx, key)
	}
	return errs, nil
}

func (ts *TieredStore[K, V]) Close() error {
	var errs []error
	for i, tier := range ts.tiers {
		if err := tier.Close(); err != nil {
			errs = append(errs, errors.WithMessagef(err, "tier %d", i))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
