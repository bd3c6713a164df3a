package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

// CachedRows 是网关缓存的数据单元：一次抓取得到的行集和总数。
type CachedRows struct {
	Rows  []map[string]any `json:"rows" msgpack:"rows"`
	Total int              `json:"total" msgpack:"total"`
}

// KeyParts 缓存键的组成部分。权限指纹必须参与键的计算：
// 两个行级权限不同的请求者即使查询完全相同也不能共享缓存。
type KeyParts struct {
	SourceKind  string
	Config      string
	Filters     map[string]any
	Search      string
	SearchCols  []string
	SortColumn  string
	SortDesc    bool
	Fingerprint string
}

type GatewayOptions struct {
	// Store 底层存储配置，为 nil 时使用进程内 MapStore
	Store *ref.TypeOptions `cfg:"store"`

	// 键前缀
	KeyPrefix string `cfg:"keyPrefix" def:"tablex"`

	// 默认 TTL，GetOrLoad 未指定 ttl 时生效
	DefaultTTL time.Duration `cfg:"defaultTTL" def:"5m"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`
}

// Gateway 表数据缓存网关。对相同请求形态的抓取结果做记忆化，
// 支持按键或按标签集失效。多个并发 Render 共享同一个实例是安全的。
//
// 缓存击穿（同一个键的并发未命中）不做防护，同一份数据至多多抓一次。
type Gateway struct {
	store      Store[string, CachedRows]
	keyPrefix  string
	defaultTTL time.Duration
	logger     logger.Logger

	// 标签到键集合的索引。索引只在进程内维护，
	// 跨进程共享存储时按标签失效只作用于本进程写入的键。
	mutex   sync.Mutex
	tagKeys map[string]map[string]struct{}
}

func NewGatewayWithOptions(options *GatewayOptions) (*Gateway, error) {
	if options == nil {
		options = &GatewayOptions{}
	}
	if options.KeyPrefix == "" {
		options.KeyPrefix = "tablex"
	}
	if options.DefaultTTL == 0 {
		options.DefaultTTL = 5 * time.Minute
	}

	var store Store[string, CachedRows]
	if options.Store == nil {
		store = NewMapStoreWithOptions[string, CachedRows](nil)
	} else {
		var err error
		store, err = NewStoreWithOptions[string, CachedRows](options.Store)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create store")
		}
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	return &Gateway{
		store:      store,
		keyPrefix:  options.KeyPrefix,
		defaultTTL: options.DefaultTTL,
		logger:     l.WithGroup("cacheGateway"),
		tagKeys:    make(map[string]map[string]struct{}),
	}, nil
}

// Key 根据请求形态构造缓存键。相同的 KeyParts 总是产生相同的键。
func (g *Gateway) Key(parts KeyParts) string {
	h := sha256.New()
	fmt.Fprintf(h, "config=%s;", parts.Config)

	// filters 按键名排序保证键的稳定性
	filterKeys := make([]string, 0, len(parts.Filters))
	for k := range parts.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		value, _ := json.Marshal(parts.Filters[k])
		fmt.Fprintf(h, "filter:%s=%s;", k, value)
	}

	fmt.Fprintf(h, "search=%s;cols=%s;", parts.Search, strings.Join(parts.SearchCols, ","))
	fmt.Fprintf(h, "sort=%s,desc=%t;", parts.SortColumn, parts.SortDesc)
	fmt.Fprintf(h, "perm=%s;", parts.Fingerprint)

	return fmt.Sprintf("%s:%s:%s", g.keyPrefix, parts.SourceKind, hex.EncodeToString(h.Sum(nil)))
}

// GetOrLoad 查询缓存，未命中时调用 load 抓取并回填。
// ttl 为 0 时使用网关默认值。
func (g *Gateway) GetOrLoad(ctx context.Context, key string, ttl time.Duration, tags []string, load func(ctx context.Context) (CachedRows, error)) (CachedRows, error) {
	cached, err := g.store.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		// 缓存故障不阻断渲染，降级为直接抓取
		g.logger.WarnContext(ctx, "cache lookup failed, falling back to load", "key", key, "error", err.Error())
	}

	loaded, err := load(ctx)
	if err != nil {
		return CachedRows{}, err
	}

	if ttl == 0 {
		ttl = g.defaultTTL
	}
	if err := g.store.Set(ctx, key, loaded, WithExpiration(ttl)); err != nil {
		g.logger.WarnContext(ctx, "cache fill failed", "key", key, "error", err.Error())
		return loaded, nil
	}

	g.indexTags(key, tags)
	return loaded, nil
}

func (g *Gateway) indexTags(key string, tags []string) {
	if len(tags) == 0 {
		return
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()
	for _, tag := range tags {
		keys, ok := g.tagKeys[tag]
		if !ok {
			keys = make(map[string]struct{})
			g.tagKeys[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate 按键失效。
func (g *Gateway) Invalidate(ctx context.Context, key string) error {
	return g.store.Del(ctx, key)
}

// InvalidateTags 失效标签集下的所有键。
func (g *Gateway) InvalidateTags(ctx context.Context, tags ...string) error {
	g.mutex.Lock()
	keySet := make(map[string]struct{})
	for _, tag := range tags {
		for key := range g.tagKeys[tag] {
			keySet[key] = struct{}{}
		}
		delete(g.tagKeys, tag)
	}
	g.mutex.Unlock()

	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}

	keyErrs, err := g.store.BatchDel(ctx, keys)
	if err != nil {
		return errors.WithMessage(err, "store.BatchDel failed")
	}

	var errs []error
	for i, keyErr := range keyErrs {
		if keyErr != nil {
			errs = append(errs, errors.WithMessagef(keyErr, "key %s", keys[i]))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("invalidate errors: %v", errs)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.store.Close()
}
