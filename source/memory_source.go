package source

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type MemorySourceOptions struct {
	// Rows 固定的行集
	Rows []map[string]interface{} `cfg:"rows"`

	// Generator 惰性产生行集，与 Rows 二选一。
	// 只能通过代码注入，不支持从配置文件加载
	Generator func(ctx context.Context) ([]map[string]interface{}, error) `cfg:"-"`

	// Cache 缓存策略，默认不启用
	Cache *CachePolicy `cfg:"cache"`
}

// MemorySource 内存数据源。持有固定行集或生成器，
// 过滤、搜索、排序、分页全部在内存中执行
type MemorySource struct {
	state     *queryState
	rows      RowSet
	generator func(ctx context.Context) ([]map[string]interface{}, error)
	config    string
}

func NewMemorySourceWithOptions(options *MemorySourceOptions) (*MemorySource, error) {
	if options == nil {
		options = &MemorySourceOptions{}
	}
	if options.Rows == nil && options.Generator == nil {
		return nil, errors.New("either rows or generator is required")
	}

	state, err := newQueryState(options.Cache, 0)
	if err != nil {
		return nil, err
	}

	return &MemorySource{
		state:     state,
		rows:      options.Rows,
		generator: options.Generator,
		config:    fmt.Sprintf("rows=%d,generator=%t", len(options.Rows), options.Generator != nil),
	}, nil
}

func (s *MemorySource) ApplyFilters(filters map[string]interface{}) Source {
	s.state.applyFilters(filters)
	return s
}

func (s *MemorySource) ApplySearch(term string, columns []string) Source {
	s.state.applySearch(term, columns)
	return s
}

func (s *MemorySource) ApplySort(column string, direction string) Source {
	s.state.applySort(column, direction)
	return s
}

func (s *MemorySource) ApplyFingerprint(fingerprint string) Source {
	s.state.fingerprint = fingerprint
	return s
}

func (s *MemorySource) load(ctx context.Context) (RowSet, error) {
	if s.generator != nil {
		rows, err := s.generator(ctx)
		if err != nil {
			return nil, errors.WithMessage(err, "generator failed")
		}
		return rows, nil
	}
	return s.rows, nil
}

func (s *MemorySource) FetchAll(ctx context.Context) (RowSet, error) {
	return s.state.fetchFiltered(ctx, "memory", s.config, s.load)
}

func (s *MemorySource) FetchPage(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	all, err := s.state.fetchFiltered(ctx, "memory", s.config, s.load)
	if err != nil {
		return nil, nil, err
	}
	rows, info := paginate(all, page, pageSize)
	return rows, info, nil
}

func (s *MemorySource) Count(ctx context.Context) (int, error) {
	all, err := s.state.fetchFiltered(ctx, "memory", s.config, s.load)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *MemorySource) Capabilities() Capabilities {
	return Capabilities{Pagination: true, Search: true, Sort: true, Filter: true}
}

func (s *MemorySource) IsAvailable(ctx context.Context) bool {
	return true
}
