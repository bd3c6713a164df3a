package cache

import (
	"context"
	"time"

	"github.com/hatlonely/tablex/cache/serializer"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

type LevelDBStoreOptions struct {
	// DBPath 是数据库目录的路径
	DBPath string `cfg:"dbPath" validate:"required"`

	// 默认 TTL
	DefaultTTL time.Duration `cfg:"defaultTTL"`

	// 以只读模式打开数据库
	ReadOnly bool `cfg:"readOnly"`

	// 块缓存容量（字节）
	BlockCacheCapacity int `cfg:"blockCacheCapacity"`

	// 键的序列化选项
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`

	// 值的序列化选项
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

// LevelDBStore 基于 goleveldb 的持久化缓存存储。
type LevelDBStore[K comparable, V any] struct {
	db            *leveldb.DB
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
}

func NewLevelDBStoreWithOptions[K comparable, V any](options *LevelDBStoreOptions) (*LevelDBStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if options.DBPath == "" {
		return nil, errors.New("DBPath is required")
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, err
	}

	valSerializer, err := serializer.NewByteSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, err
	}

	ldbOptions := &opt.Options{
		ReadOnly: options.ReadOnly,
	}
	if options.BlockCacheCapacity > 0 {
		ldbOptions.BlockCacheCapacity = options.BlockCacheCapacity
	}

	db, err := leveldb.OpenFile(options.DBPath, ldbOptions)
	if err != nil {
		return nil, errors.WithMessage(err, "leveldb.OpenFile failed")
	}

	return &LevelDBStore[K, V]{
		db:            db,
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *LevelDBStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
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
		if _, err := s.db.Get(keyBytes, nil); err == nil {
			return ErrConditionFailed
		}
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	entryBytes, err := encodeEntry(valueBytes, expiration)
	if err != nil {
		return err
	}

	return s.db.Put(keyBytes, entryBytes, nil)
}

func (s *LevelDBStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, err
	}

	entryBytes, err := s.db.Get(keyBytes, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return zero, ErrKeyNotFound
		}
		return zero, err
	}

	entry, err := decodeEntry(entryBytes)
	if err != nil {
		return zero, err
	}
	if entry.expired() {
		_ = s.Del(ctx, key)
		return zero, ErrKeyNotFound
	}

	return s.valSerializer.Deserialize(entry.Value)
}

func (s *LevelDBStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return err
	}
	return s.db.Delete(keyBytes, nil)
}

func (s *LevelDBStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Set(ctx, key, vals[i], opts...)
	}
	return errs, nil
}

func (s *LevelDBStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		values[i], errs[i] = s.Get(ctx, key)
	}
	return values, errs, nil
}

// BatchDel 通过 leveldb 的写批次一次性提交
func (s *LevelDBStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	errs := make([]error, len(keys))
	batch := new(leveldb.Batch)
	for i, key := range keys {
		keyBytes, err := s.keySerializer.Serialize(key)
		if err != nil {
			errs[i] = err
			continue
		}
		batch.Delete(keyBytes)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}
	return errs, nil
}

func (s *LevelDBStore[K, V]) Close() error {
	return s.db.Close()
}
