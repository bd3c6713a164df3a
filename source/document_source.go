package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type DocumentSourceOptions struct {
	// 文档位置，本地文件路径或 http(s) 地址
	Path string `cfg:"path"`

	// 文档中行集所在的路径，点号分隔。为空时要求顶层就是数组
	DataKey string `cfg:"dataKey"`

	// 单次拉取超时，仅对远程文档生效
	Timeout time.Duration `cfg:"timeout" def:"10s"`

	// 缓存策略。文档解析开销高，默认 TTL 为 10 分钟
	Cache *CachePolicy `cfg:"cache"`
}

// DocumentSource 文档数据源。从文件或网络读取 JSON 文档并当作
// 内存行集处理。文档不可读或格式非法时整体判定为抓取失败，
// 不返回部分解析结果
type DocumentSource struct {
	state   *queryState
	path    string
	dataKey string
	client  *http.Client
	config  string
}

func NewDocumentSourceWithOptions(options *DocumentSourceOptions) (*DocumentSource, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("path is required")
	}
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Second
	}

	state, err := newQueryState(options.Cache, 10*time.Minute)
	if err != nil {
		return nil, err
	}

	return &DocumentSource{
		state:   state,
		path:    options.Path,
		dataKey: options.DataKey,
		client:  &http.Client{Timeout: options.Timeout},
		config:  fmt.Sprintf("path=%s,dataKey=%s", options.Path, options.DataKey),
	}, nil
}

func (s *DocumentSource) ApplyFilters(filters map[string]interface{}) Source {
	s.state.applyFilters(filters)
	return s
}

func (s *DocumentSource) ApplySearch(term string, columns []string) Source {
	s.state.applySearch(term, columns)
	return s
}

func (s *DocumentSource) ApplySort(column string, direction string) Source {
	s.state.applySort(column, direction)
	return s
}

func (s *DocumentSource) ApplyFingerprint(fingerprint string) Source {
	s.state.fingerprint = fingerprint
	return s
}

func (s *DocumentSource) isRemote() bool {
	return strings.HasPrefix(s.path, "http://") || strings.HasPrefix(s.path, "https://")
}

func (s *DocumentSource) read(ctx context.Context) ([]byte, error) {
	if s.isRemote() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.path, nil)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to build request")
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to fetch document")
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.Errorf("remote responded with status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}

	buf, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read document [%s]", s.path)
	}
	return buf, nil
}

func (s *DocumentSource) load(ctx context.Context) (RowSet, error) {
	buf, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	var root interface{}
	if err := json.Unmarshal(buf, &root); err != nil {
		return nil, errors.WithMessage(err, "malformed document")
	}

	node := root
	if s.dataKey != "" {
		var ok bool
		node, ok = descend(root, s.dataKey)
		if !ok {
			return nil, errors.Errorf("dataKey [%s] not found in document", s.dataKey)
		}
	}

	items, ok := node.([]interface{})
	if !ok {
		return nil, errors.New("document rows node is not an array")
	}
	rows := make(RowSet, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.New("document row is not an object")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *DocumentSource) FetchAll(ctx context.Context) (RowSet, error) {
	return s.state.fetchFiltered(ctx, "document", s.config, s.load)
}

func (s *DocumentSource) FetchPage(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	all, err := s.state.fetchFiltered(ctx, "document", s.config, s.load)
	if err != nil {
		return nil, nil, err
	}
	rows, info := paginate(all, page, pageSize)
	return rows, info, nil
}

func (s *DocumentSource) Count(ctx context.Context) (int, error) {
	all, err := s.state.fetchFiltered(ctx, "document", s.config, s.load)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *DocumentSource) Capabilities() Capabilities {
	return Capabilities{Pagination: true, Search: true, Sort: true, Filter: true}
}

func (s *DocumentSource) IsAvailable(ctx context.Context) bool {
	if s.isRemote() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.path, nil)
		if err != nil {
			return false
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode < 500
	}

	_, err := os.Stat(s.path)
	return err == nil
}
