package source

import (
	"context"

	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

// Row 一行数据，列键到原始值的映射
type Row = map[string]interface{}

// RowSet 行集合。抓取方法返回的行集是调用方独占的副本，
// 修改它不会影响缓存或其他请求。
type RowSet = []Row

// SortAsc/SortDesc 排序方向
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// PageInfo 分页元信息。Total 统计的是过滤和搜索之后、切片之前的行数
type PageInfo struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
	LastPage int `json:"lastPage"`
	From     int `json:"from"`
	To       int `json:"to"`
}

// Capabilities 数据源能力声明
type Capabilities struct {
	Pagination bool `json:"pagination"`
	Search     bool `json:"search"`
	Sort       bool `json:"sort"`
	Filter     bool `json:"filter"`
}

// Source 数据源统一契约。五种后端实现同一套行为：
// 过滤、搜索、排序的语义在各后端之间观测等价，
// 或者下推到后端的原生查询能力，或者在内存中按相同规则执行。
//
// Apply 系列方法是流式配置，返回自身并清除已缓存的结果。
// 一个实例只服务一次渲染调用，不能在并发请求间共享。
type Source interface {
	// ApplyFilters 合并过滤条件。nil 和空字符串的条件值被忽略
	ApplyFilters(filters map[string]interface{}) Source
	// ApplySearch 设置搜索词和参与搜索的列。空搜索词等价于未搜索
	ApplySearch(term string, columns []string) Source
	// ApplySort 设置唯一的排序键
	ApplySort(column string, direction string) Source
	// ApplyFingerprint 设置请求者的权限指纹，参与缓存键的计算
	ApplyFingerprint(fingerprint string) Source

	// FetchAll 返回匹配当前过滤、搜索、排序状态的全部行
	FetchAll(ctx context.Context) (RowSet, error)
	// FetchPage 返回一页数据。页码越界时退到最近的合法页，不报错
	FetchPage(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error)
	// Count 返回过滤和搜索之后的总行数，与分页无关
	Count(ctx context.Context) (int, error)

	Capabilities() Capabilities
	// IsAvailable 可用性探测，用于诊断，不在请求热路径上调用
	IsAvailable(ctx context.Context) bool
}

// NewSourceWithOptions 根据类型配置构造数据源
func NewSourceWithOptions(options *ref.TypeOptions) (Source, error) {
	if options == nil {
		return nil, errors.New("source options is nil")
	}

	ref.MustRegisterT[*SQLSource](NewSQLSourceWithOptions)
	ref.MustRegisterT[*MemorySource](NewMemorySourceWithOptions)
	ref.MustRegisterT[*APISource](NewAPISourceWithOptions)
	ref.MustRegisterT[*DocumentSource](NewDocumentSourceWithOptions)
	ref.MustRegisterT[*TabularSource](NewTabularSourceWithOptions)

	v, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create source")
	}

	src, ok := v.(Source)
	if !ok {
		return nil, errors.Errorf("type [%s] is not a source", options.Type)
	}
	return src, nil
}
