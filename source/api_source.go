package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/cache"
	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/query"
	"github.com/hatlonely/tablex/ref"
)

type APISourceOptions struct {
	// 远端接口地址
	BaseURL string `cfg:"baseURL"`

	// 附加到每个请求的头
	Headers map[string]string `cfg:"headers"`

	// 单次请求超时
	Timeout time.Duration `cfg:"timeout" def:"10s"`

	// 失败后的最大重试次数
	Retries int `cfg:"retries" def:"2"`

	// 重试间隔，固定退避
	RetryInterval time.Duration `cfg:"retryInterval" def:"500ms"`

	// 响应体中行集所在的路径，点号分隔。为空时自动识别：
	// 顶层数组直接使用，顶层对象取 data 字段
	DataKey string `cfg:"dataKey"`

	// 响应体中总数所在的路径，分页下推时使用
	TotalKey string `cfg:"totalKey" def:"total"`

	// 远端声明的能力。未声明的能力在取回的行集上按内存语义补齐
	SupportsPagination bool `cfg:"supportsPagination"`
	SupportsSearch     bool `cfg:"supportsSearch"`
	SupportsSort       bool `cfg:"supportsSort"`
	SupportsFilter     bool `cfg:"supportsFilter"`

	// 下推能力对应的请求参数名
	PageParam      string `cfg:"pageParam" def:"page"`
	PerPageParam   string `cfg:"perPageParam" def:"per_page"`
	SearchParam    string `cfg:"searchParam" def:"search"`
	SortParam      string `cfg:"sortParam" def:"sort"`
	DirectionParam string `cfg:"directionParam" def:"direction"`

	// 缓存策略。远端抓取开销高，默认 TTL 为 5 分钟
	Cache *CachePolicy `cfg:"cache"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`
}

// APISource 远端接口数据源。远端声明了哪些能力就把哪些操作
// 下推为请求参数，其余能力在取回的行集上按内存语义补齐
type APISource struct {
	state   *queryState
	options *APISourceOptions
	client  *http.Client
	config  string
	logger  logger.Logger
}

func NewAPISourceWithOptions(options *APISourceOptions) (*APISource, error) {
	if options == nil || options.BaseURL == "" {
		return nil, errors.New("baseURL is required")
	}
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Second
	}
	if options.Retries == 0 {
		options.Retries = 2
	}
	if options.RetryInterval == 0 {
		options.RetryInterval = 500 * time.Millisecond
	}
	if options.TotalKey == "" {
		options.TotalKey = "total"
	}
	if options.PageParam == "" {
		options.PageParam = "page"
	}
	if options.PerPageParam == "" {
		options.PerPageParam = "per_page"
	}
	if options.SearchParam == "" {
		options.SearchParam = "search"
	}
	if options.SortParam == "" {
		options.SortParam = "sort"
	}
	if options.DirectionParam == "" {
		options.DirectionParam = "direction"
	}

	state, err := newQueryState(options.Cache, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	return &APISource{
		state:   state,
		options: options,
		client:  &http.Client{Timeout: options.Timeout},
		config:  fmt.Sprintf("baseURL=%s", options.BaseURL),
		logger:  l.WithGroup("apiSource"),
	}, nil
}

func (s *APISource) ApplyFilters(filters map[string]interface{}) Source {
	s.state.applyFilters(filters)
	return s
}

func (s *APISource) ApplySearch(term string, columns []string) Source {
	s.state.applySearch(term, columns)
	return s
}

func (s *APISource) ApplySort(column string, direction string) Source {
	s.state.applySort(column, direction)
	return s
}

func (s *APISource) ApplyFingerprint(fingerprint string) Source {
	s.state.fingerprint = fingerprint
	return s
}

// requestURL 组装请求地址，只有远端声明支持的能力才下推为参数
func (s *APISource) requestURL(page int, pageSize int) (string, error) {
	u, err := url.Parse(s.options.BaseURL)
	if err != nil {
		return "", errors.WithMessage(err, "invalid baseURL")
	}

	values := u.Query()
	if s.options.SupportsFilter {
		for column, value := range s.state.filters {
			switch v := value.(type) {
			case []string:
				for _, item := range v {
					values.Add(fmt.Sprintf("filters[%s][]", column), item)
				}
			case []interface{}:
				for _, item := range v {
					values.Add(fmt.Sprintf("filters[%s][]", column), query.Stringify(item))
				}
			default:
				values.Set(fmt.Sprintf("filters[%s]", column), query.Stringify(value))
			}
		}
	}
	if s.options.SupportsSearch && s.state.searchTerm != "" {
		values.Set(s.options.SearchParam, s.state.searchTerm)
	}
	if s.options.SupportsSort && s.state.sortColumn != "" {
		values.Set(s.options.SortParam, s.state.sortColumn)
		direction := SortAsc
		if s.state.sortDesc {
			direction = SortDesc
		}
		values.Set(s.options.DirectionParam, direction)
	}
	if s.options.SupportsPagination && pageSize > 0 {
		values.Set(s.options.PageParam, strconv.Itoa(page))
		values.Set(s.options.PerPageParam, strconv.Itoa(pageSize))
	}

	u.RawQuery = values.Encode()
	return u.String(), nil
}

// doRequest 有界重试加固定退避。网络错误和 5xx 可重试，
// 其余非 2xx 响应立即判定为抓取失败，不返回部分结果
func (s *APISource) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.options.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.options.RetryInterval):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to build request")
		}
		for key, value := range s.options.Headers {
			req.Header.Set(key, value)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "request failed", "url", requestURL, "attempt", attempt, "error", err.Error())
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = errors.Errorf("remote responded with status %d", resp.StatusCode)
			s.logger.WarnContext(ctx, "retryable response", "url", requestURL, "status", resp.StatusCode, "attempt", attempt)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.Errorf("remote responded with status %d", resp.StatusCode)
		}
		return body, nil
	}
	return nil, errors.WithMessage(lastErr, "request failed after retries")
}

// decode 解析响应体。DataKey 为空时自动识别顶层数组或 data 字段
func (s *APISource) decode(body []byte) (RowSet, int, error) {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, 0, errors.WithMessage(err, "malformed response body")
	}

	var rowsNode interface{}
	switch {
	case s.options.DataKey != "":
		node, ok := descend(root, s.options.DataKey)
		if !ok {
			return nil, 0, errors.Errorf("dataKey [%s] not found in response", s.options.DataKey)
		}
		rowsNode = node
	default:
		if _, ok := root.([]interface{}); ok {
			rowsNode = root
		} else if node, ok := descend(root, "data"); ok {
			rowsNode = node
		} else {
			return nil, 0, errors.New("cannot locate rows in response")
		}
	}

	items, ok := rowsNode.([]interface{})
	if !ok {
		return nil, 0, errors.New("rows node is not an array")
	}
	rows := make(RowSet, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			return nil, 0, errors.New("row is not an object")
		}
		rows = append(rows, row)
	}

	total := len(rows)
	if node, ok := descend(root, s.options.TotalKey); ok {
		if f, ok := node.(float64); ok {
			total = int(f)
		}
	}
	return rows, total, nil
}

func descend(node interface{}, path string) (interface{}, bool) {
	cur := node
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// localState 返回只包含未下推能力的查询状态，用于内存补齐
func (s *APISource) localState() *queryState {
	st := &queryState{filters: make(map[string]interface{})}
	if !s.options.SupportsFilter {
		st.filters = s.state.filters
	}
	if !s.options.SupportsSearch {
		st.searchTerm = s.state.searchTerm
		st.searchCols = s.state.searchCols
	}
	if !s.options.SupportsSort {
		st.sortColumn = s.state.sortColumn
		st.sortDesc = s.state.sortDesc
	}
	return st
}

// fetch 抓取一页或全量。远端未声明分页能力时取回全量行集，
// 在内存中补齐未下推的语义后再切片
func (s *APISource) fetch(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	doLoad := func(ctx context.Context) (cachedPage, error) {
		requestURL, err := s.requestURL(page, pageSize)
		if err != nil {
			return cachedPage{}, err
		}
		body, err := s.doRequest(ctx, requestURL)
		if err != nil {
			return cachedPage{}, err
		}
		rows, total, err := s.decode(body)
		if err != nil {
			return cachedPage{}, err
		}

		local := s.localState()
		rows = local.pipeline(rows)
		if !s.options.SupportsPagination || pageSize == 0 {
			total = len(rows)
		}
		return cachedPage{rows: rows, total: total}, nil
	}

	loaded, err := s.cachedFetch(ctx, page, pageSize, doLoad)
	if err != nil {
		return nil, nil, err
	}

	if pageSize == 0 {
		return loaded.rows, nil, nil
	}
	if s.options.SupportsPagination {
		_, info := paginateInfo(loaded.total, page, pageSize)
		// 远端只在越界页返回空集，退到修正后的页码重新抓取
		if info.Page < page {
			return s.fetch(ctx, info.Page, pageSize)
		}
		return loaded.rows, info, nil
	}
	rows, info := paginate(loaded.rows, page, pageSize)
	return rows, info, nil
}

type cachedPage struct {
	rows  RowSet
	total int
}

func (s *APISource) cachedFetch(ctx context.Context, page int, pageSize int, doLoad func(ctx context.Context) (cachedPage, error)) (cachedPage, error) {
	if s.state.gateway == nil {
		return doLoad(ctx)
	}

	parts := s.state.keyParts("api", s.config)
	if s.options.SupportsPagination && pageSize > 0 {
		parts.Config = fmt.Sprintf("%s,page=%d,pageSize=%d", parts.Config, page, pageSize)
	}
	key := s.state.gateway.Key(parts)
	cached, err := s.state.gateway.GetOrLoad(ctx, key, s.state.cacheTTL, s.state.cacheTags, func(ctx context.Context) (cache.CachedRows, error) {
		loaded, err := doLoad(ctx)
		if err != nil {
			return cache.CachedRows{}, err
		}
		return cache.CachedRows{Rows: loaded.rows, Total: loaded.total}, nil
	})
	if err != nil {
		return cachedPage{}, err
	}
	return cachedPage{rows: copyRows(cached.Rows), total: cached.Total}, nil
}

func (s *APISource) FetchAll(ctx context.Context) (RowSet, error) {
	rows, _, err := s.fetch(ctx, 0, 0)
	return rows, err
}

func (s *APISource) FetchPage(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	if pageSize < 1 {
		pageSize = 1
	}
	return s.fetch(ctx, page, pageSize)
}

func (s *APISource) Count(ctx context.Context) (int, error) {
	if s.options.SupportsPagination {
		_, info, err := s.fetch(ctx, 1, 1)
		if err != nil {
			return 0, err
		}
		return info.Total, nil
	}
	rows, err := s.FetchAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *APISource) Capabilities() Capabilities {
	return Capabilities{
		Pagination: s.options.SupportsPagination,
		Search:     s.options.SupportsSearch,
		Sort:       s.options.SupportsSort,
		Filter:     s.options.SupportsFilter,
	}
}

func (s *APISource) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.options.BaseURL, nil)
	if err != nil {
		return false
	}
	for key, value := range s.options.Headers {
		req.Header.Set(key, value)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}
