package cache

import (
	"context"
	"time"

	"github.com/hatlonely/tablex/cache/serializer"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltDBStoreOptions struct {
	// DBPath 是数据库文件的路径，文件不存在时自动创建。
	DBPath string `cfg:"dbPath" validate:"required"`

	// 默认桶名称
	BucketName string `cfg:"bucketName" def:"cache"`

	// 默认 TTL
	DefaultTTL time.Duration `cfg:"defaultTTL"`

	// Timeout 是获取文件锁的等待时间，零值表示无限期等待。
	Timeout time.Duration `cfg:"timeout"`

	// 以只读模式打开数据库
	ReadOnly bool `cfg:"readOnly"`

	// 键的序列化选项
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`

	// 值的序列化选项
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

// BoltDBStore 基于 bbolt 的持久化缓存存储，
// 适合文件/远程数据源这类抓取代价高、允许跨进程重启保留的场景。
type BoltDBStore[K comparable, V any] struct {
	db            *bolt.DB
	bucketName    []byte
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
}

func NewBoltDBStoreWithOptions[K comparable, V any](options *BoltDBStoreOptions) (*BoltDBStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if options.DBPath == "" {
		return nil, errors.New("DBPath is required")
	}
	if options.BucketName == "" {
		options.BucketName = "cache"
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, err
	}

	valSerializer, err := serializer.NewByteSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(options.DBPath, 0o600, &bolt.Options{
		Timeout:  options.Timeout,
		ReadOnly: options.ReadOnly,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "bolt.Open failed")
	}

	store := &BoltDBStore[K, V]{
		db:            db,
		bucketName:    []byte(options.BucketName),
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}

	if !options.ReadOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(store.bucketName)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, errors.WithMessage(err, "create bucket failed")
		}
	}

	return store, nil
}

func (s *BoltDBStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
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

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	entryBytes, err := encodeEntry(valueBytes, expiration)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.Errorf("bucket %s not found", s.bucketName)
		}

		if options.IfNotExist {
			if existing := bucket.Get(keyBytes); existing != nil {
				entry, err := decodeEntry(existing)
				if err == nil && !entry.expired() {
					return ErrConditionFailed
				}
			}
		}

		return bucket.Put(keyBytes, entryBytes)
	})
}

func (s *BoltDBStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, err
	}

	var entryBytes []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.Errorf("bucket %s not found", s.bucketName)
		}

		data := bucket.Get(keyBytes)
		if data == nil {
			return ErrKeyNotFound
		}

		// bolt 返回的字节只在事务内有效，需要复制
		entryBytes = append([]byte(nil), data...)
		return nil
	}); err != nil {
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

func (s *BoltDBStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(keyBytes)
	})
}

// BatchSet 在单个写事务内完成全部写入
func (s *BoltDBStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	errs := make([]error, len(keys))
	if err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.Errorf("bucket %s not found", s.bucketName)
		}

		for i, key := range keys {
			keyBytes, err := s.keySerializer.Serialize(key)
			if err != nil {
				errs[i] = err
				continue
			}
			valueBytes, err := s.valSerializer.Serialize(vals[i])
			if err != nil {
				errs[i] = err
				continue
			}
			entryBytes, err := encodeEntry(valueBytes, expiration)
			if err != nil {
				errs[i] = err
				continue
			}

			if options.IfNotExist {
				if existing := bucket.Get(keyBytes); existing != nil {
					entry, err := decodeEntry(existing)
					if err == nil && !entry.expired() {
						errs[i] = ErrConditionFailed
						continue
					}
				}
			}

			errs[i] = bucket.Put(keyBytes, entryBytes)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return errs, nil
}

func (s *BoltDBStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	entries := make([][]byte, len(keys))

	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.Errorf("bucket %s not found", s.bucketName)
		}

		for i, key := range keys {
			keyBytes, err := s.keySerializer.Serialize(key)
			if err != nil {
				errs[i] = err
				continue
			}
			data := bucket.Get(keyBytes)
			if data == nil {
				errs[i] = ErrKeyNotFound
				continue
			}
			entries[i] = append([]byte(nil), data...)
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}

	for i, entryBytes := range entries {
		if errs[i] != nil || entryBytes == nil {
			continue
		}
		entry, err := decodeEntry(entryBytes)
		if err != nil {
			errs[i] = err
			continue
		}
		if entry.expired() {
			_ = s.Del(ctx, keys[i])
			errs[i] = ErrKeyNotFound
			continue
		}
		values[i], errs[i] = s.valSerializer.Deserialize(entry.Value)
	}
	return values, errs, nil
}

// BatchDel 在单个写事务内完成全部删除
func (s *BoltDBStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	errs := make([]error, len(keys))
	if err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return nil
		}
		for i, key := range keys {
			keyBytes, err := s.keySerializer.Serialize(key)
			if err != nil {
				errs[i] = err
				continue
			}
			errs[i] = bucket.Delete(keyBytes)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return errs, nil
}

func (s *BoltDBStore[K, V]) Close() error {
	return s.db.Close()
}
