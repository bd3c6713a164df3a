package cache

import (
	"context"
	"time"

	"github.com/hatlonely/tablex/cache/serializer"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint"`

	// 集群节点的 host:port 地址列表
	Endpoints []string `cfg:"endpoints"`

	// 默认 TTL
	DefaultTTL time.Duration `cfg:"defaultTTL"`

	// 键前缀，多个表共用一个 redis 实例时用于隔离
	KeyPrefix string `cfg:"keyPrefix"`

	// 键的序列化选项
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`

	// 值的序列化选项
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`

	// 连接到服务器后选择的数据库
	DB int `cfg:"db" def:"0"`

	// 放弃前的最大重试次数，-1 禁用重试
	MaxRetries int `cfg:"maxRetries" def:"3"`

	// 建立新连接的拨号超时时间
	DialTimeout time.Duration `cfg:"dialTimeout" def:"5s"`

	// 套接字读取的超时时间
	ReadTimeout time.Duration `cfg:"readTimeout" def:"3s"`

	// 套接字写入的超时时间
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`

	// 连接池大小
	PoolSize int `cfg:"poolSize" def:"100"`
}

type RedisStore[K comparable, V any] struct {
	client        redis.Cmdable
	keyPrefix     string
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
}

func NewRedisStoreWithOptions[K comparable, V any](options *RedisStoreOptions) (*RedisStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, err
	}

	valSerializer, err := serializer.NewByteSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, err
	}

	var client redis.Cmdable
	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:         options.Endpoint,
			Username:     options.Username,
			Password:     options.Password,
			DB:           options.DB,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        options.Endpoints,
			Username:     options.Username,
			Password:     options.Password,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		})
	} else {
		return nil, errors.Errorf("Endpoint or Endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return &RedisStore[K, V]{
		client:        client,
		keyPrefix:     options.KeyPrefix,
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *RedisStore[K, V]) redisKey(key K) (string, error) {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return "", err
	}
	return s.keyPrefix + string(keyBytes), nil
}

func (s *RedisStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}

	redisKey, err := s.redisKey(key)
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

	if options.IfNotExist {
		ok, err := s.client.SetNX(ctx, redisKey, valueBytes, expiration).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrConditionFailed
		}
		return nil
	}

	return s.client.Set(ctx, redisKey, valueBytes, expiration).Err()
}

func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	redisKey, err := s.redisKey(key)
	if err != nil {
		return zero, err
	}

	valueBytes, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrKeyNotFound
		}
		return zero, err
	}

	return s.valSerializer.Deserialize(valueBytes)
}

func (s *RedisStore[K, V]) Del(ctx context.Context, key K) error {
	redisKey, err := s.redisKey(key)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, redisKey).Err()
}

func (s *RedisStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	if len(keys) != len(vals) {
		return nil, errors.New("keys and vals length mismatch")
	}

	errs := make([]error, len(keys))
	for i, key := range keys {
		errs[i] = s.Set(ctx, key, vals[i], opts...)
	}
	return errs, nil
}

func (s *RedisStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKey, err := s.redisKey(key)
		if err != nil {
			return nil, nil, err
		}
		redisKeys[i] = redisKey
	}

	results, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, nil, err
	}

	for i, result := range results {
		if result == nil {
			errs[i] = ErrKeyNotFound
			continue
		}
		str, ok := result.(string)
		if !ok {
			errs[i] = errors.Errorf("unexpected value type %T", result)
			continue
		}
		values[i], errs[i] = s.valSerializer.Deserialize([]byte(str))
	}
	return values, errs, nil
}

func (s *RedisStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKey, err := s.redisKey(key)
		if err != nil {
			return nil, err
		}
		redisKeys[i] = redisKey
	}

	if len(redisKeys) > 0 {
		if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
			return nil, err
		}
	}
	return make([]error, len(keys)), nil
}

func (s *RedisStore[K, V]) Close() error {
	if closer, ok := s.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
