package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/fifo"
	"github.com/cockroachdb/pebble"
	"github.com/hatlonely/tablex/cache/serializer"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

type PebbleStoreOptions struct {
	// DBPath 是数据库目录的路径
	DBPath string `cfg:"dbPath" validate:"required"`

	// 默认 TTL
	DefaultTTL time.Duration `cfg:"defaultTTL"`

	// 写入时是否同步刷盘。缓存数据可重建，默认不同步。
	Sync bool `cfg:"sync"`

	// MemTable 大小（字节）
	MemTableSize uint64 `cfg:"memTableSize"`

	// 并发加载 block 的信号量容量，0 表示不限制
	LoadBlockSemaCapacity int64 `cfg:"loadBlockSemaCapacity"`

	// 键的序列化选项
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`

	// 值的序列化选项
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

// PebbleStore 基于 pebble 的持久化缓存存储。
type PebbleStore[K comparable, V any] struct {
	db            *pebble.DB
	defaultTTL    time.Duration
	writeOpts     *pebble.WriteOptions
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
}

func NewPebbleStoreWithOptions[K comparable, V any](options *PebbleStoreOptions) (*PebbleStore[K, V], error) {
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

	pebbleOptions := &pebble.Options{}
	if options.MemTableSize > 0 {
		pebbleOptions.MemTableSize = options.MemTableSize
	}
	if options.LoadBlockSemaCapacity > 0 {
		pebbleOptions.LoadBlockSema = fifo.NewSemaphore(options.LoadBlockSemaCapacity)
	}

	db, err := pebble.Open(options.DBPath, pebbleOptions)
	if err != nil {
		return nil, errors.WithMessage(err, "pebble.Open failed")
	}

	writeOpts := pebble.NoSync
	if options.Sync {
		writeOpts = pebble.Sync
	}

	return &PebbleStore[K, V]{
		db:            db,
		defaultTTL:    options.DefaultTTL,
		writeOpts:     writeOpts,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *PebbleStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
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
		if _, closer, err := s.db.Get(keyBytes); err == nil {
			_ = closer.Close()
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

	return s.db.Set(keyBytes, entryBytes, s.writeOpts)
}

func (s *PebbleStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, err
	}

	data, closer, err := s.db.Get(keyBytes)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return zero, ErrKeyNotFound
		}
		return zero, err
	}
	entryBytes := append([]byte(nil), data...)
	_ = closer.Close()

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

func (s *PebbleStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return err
	}
	return s.db.Delete(keyBytes, s.writeOpts)
}

func (s *PebbleStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Set(ctx, key, vals[i], opts...)
	}
	return errs, nil
}

func (s *PebbleStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		values[i], errs[i] = s.Get(ctx, key)
	}
	return values, errs, nil
}

// BatchDel 通过 pebble 的写批次一次性提交
func (s *PebbleStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	errs := make([]error, len(keys))
	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()

	for i, key := range keys {
		keyBytes, err := s.keySerializer.Serialize(key)
		if err != nil {
			errs[i] = err
			continue
		}
		if err := batch.Delete(keyBytes, nil); err != nil {
			errs[i] = err
		}
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return nil, err
	}
	return errs, nil
}

func (s *PebbleStore[K, V]) Close() error {
	return s.db.Close()
}
