package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hatlonely/tablex/cache"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

// CachePolicy 数据源的缓存策略
type CachePolicy struct {
	// 是否启用缓存
	Enabled bool `cfg:"enabled"`

	// 缓存 TTL，为 0 时使用各数据源的默认值
	TTL time.Duration `cfg:"ttl"`

	// 缓存键前缀
	KeyPrefix string `cfg:"keyPrefix"`

	// 写入缓存时附加的标签集，用于按标签批量失效
	Tags []string `cfg:"tags"`

	// 底层存储配置，为 nil 时使用进程内存储
	Store *ref.TypeOptions `cfg:"store"`

	// 直接注入的缓存网关，设置时忽略 Store 和 KeyPrefix。
	// 持有方可以用同一个实例做失效，只能通过代码注入
	Gateway *cache.Gateway `cfg:"-"`
}

var (
	gatewayPoolMutex sync.Mutex
	gatewayPool      = make(map[string]*cache.Gateway)
)

// GatewayForPolicy 返回策略对应的缓存网关。相同策略总是返回同一个实例：
// 数据源每次渲染都会重建，网关和它的底层存储必须跨实例存活，
// 否则记忆化和标签失效都只有一次渲染的生命周期。
// 调用方可以用返回的网关对数据源写入的缓存做失效
func GatewayForPolicy(policy *CachePolicy, defaultTTL time.Duration) (*cache.Gateway, error) {
	if policy.Gateway != nil {
		return policy.Gateway, nil
	}

	ttl := policy.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}

	buf, err := json.Marshal(policy)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to marshal cache policy")
	}
	poolKey := fmt.Sprintf("%s|%s", buf, ttl)

	gatewayPoolMutex.Lock()
	defer gatewayPoolMutex.Unlock()
	if gateway, ok := gatewayPool[poolKey]; ok {
		return gateway, nil
	}

	gateway, err := cache.NewGatewayWithOptions(&cache.GatewayOptions{
		Store:      policy.Store,
		KeyPrefix:  policy.KeyPrefix,
		DefaultTTL: ttl,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create cache gateway")
	}
	gatewayPool[poolKey] = gateway
	return gateway, nil
}

// queryState 各数据源共享的请求内查询状态。
// 配置在构造后只读，这里保存的是一次渲染调用内的可变部分。
type queryState struct {
	filters     map[string]interface{}
	searchTerm  string
	searchCols  []string
	sortColumn  string
	sortDesc    bool
	fingerprint string

	gateway   *cache.Gateway
	cacheTTL  time.Duration
	cacheTags []string
}

func newQueryState(policy *CachePolicy, defaultTTL time.Duration) (*queryState, error) {
	st := &queryState{
		filters: make(map[string]interface{}),
	}

	if policy == nil || !policy.Enabled {
		return st, nil
	}

	ttl := policy.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	gateway, err := GatewayForPolicy(policy, defaultTTL)
	if err != nil {
		return nil, err
	}

	st.gateway = gateway
	st.cacheTTL = ttl
	st.cacheTags = policy.Tags
	return st, nil
}

func (st *queryState) applyFilters(filters map[string]interface{}) {
	for k, v := range filters {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		st.filters[k] = v
	}
}

func (st *queryState) applySearch(term string, columns []string) {
	st.searchTerm = term
	st.searchCols = columns
}

func (st *queryState) applySort(column string, direction string) {
	st.sortColumn = column
	st.sortDesc = direction == SortDesc
}

// fetchFiltered 内存型数据源的统一抓取路径：物化原始行集，
// 执行内存查询管道，结果经缓存网关记忆化。返回调用方独占的副本。
func (st *queryState) fetchFiltered(ctx context.Context, kind string, config string, load func(ctx context.Context) (RowSet, error)) (RowSet, error) {
	doLoad := func(ctx context.Context) (cache.CachedRows, error) {
		raw, err := load(ctx)
		if err != nil {
			return cache.CachedRows{}, err
		}
		filtered := st.pipeline(raw)
		return cache.CachedRows{Rows: filtered, Total: len(filtered)}, nil
	}

	if st.gateway == nil {
		cached, err := doLoad(ctx)
		if err != nil {
			return nil, err
		}
		return copyRows(cached.Rows), nil
	}

	key := st.gateway.Key(st.keyParts(kind, config))
	cached, err := st.gateway.GetOrLoad(ctx, key, st.cacheTTL, st.cacheTags, doLoad)
	if err != nil {
		return nil, err
	}
	return copyRows(cached.Rows), nil
}

func (st *queryState) keyParts(kind string, config string) cache.KeyParts {
	return cache.KeyParts{
		SourceKind:  kind,
		Config:      config,
		Filters:     st.filters,
		Search:      st.searchTerm,
		SearchCols:  st.searchCols,
		SortColumn:  st.sortColumn,
		SortDesc:    st.sortDesc,
		Fingerprint: st.fingerprint,
	}
}
