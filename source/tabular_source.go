package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

type TabularSourceOptions struct {
	// 表格文件位置，本地文件路径或 http(s) 地址
	Path string `cfg:"path"`

	// 字段分隔符，默认逗号。制表符写作 "\t"，仅对分隔符文本生效
	Delimiter string `cfg:"delimiter" def:","`

	// 工作表名称，仅对 xlsx 等电子表格生效，为空时取第一个工作表
	Sheet string `cfg:"sheet"`

	// 注释行前导符，为空时不跳过注释行
	Comment string `cfg:"comment"`

	// 表头到输出键的重命名映射，未出现的表头原样作为键
	HeaderMapping map[string]string `cfg:"headerMapping"`

	// 是否把数字和布尔字面量解析为对应类型，默认保留字符串
	TypedValues bool `cfg:"typedValues"`

	// 单次拉取超时，仅对远程文件生效
	Timeout time.Duration `cfg:"timeout" def:"10s"`

	// 缓存策略。文件解析开销高，默认 TTL 为 30 分钟
	Cache *CachePolicy `cfg:"cache"`
}

// TabularSource 表格文件数据源。读取 CSV/TSV 或 xlsx 内容，
// 表头行映射为行键，之后当作内存行集处理
type TabularSource struct {
	state   *queryState
	options *TabularSourceOptions
	client  *http.Client
	config  string
}

func NewTabularSourceWithOptions(options *TabularSourceOptions) (*TabularSource, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("path is required")
	}
	if options.Delimiter == "" {
		options.Delimiter = ","
	}
	if len([]rune(options.Delimiter)) != 1 && options.Delimiter != "\\t" {
		return nil, errors.Errorf("invalid delimiter [%s]", options.Delimiter)
	}
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Second
	}

	state, err := newQueryState(options.Cache, 30*time.Minute)
	if err != nil {
		return nil, err
	}

	return &TabularSource{
		state:   state,
		options: options,
		client:  &http.Client{Timeout: options.Timeout},
		config:  fmt.Sprintf("path=%s,delimiter=%s,sheet=%s", options.Path, options.Delimiter, options.Sheet),
	}, nil
}

func (s *TabularSource) ApplyFilters(filters map[string]interface{}) Source {
	s.state.applyFilters(filters)
	return s
}

func (s *TabularSource) ApplySearch(term string, columns []string) Source {
	s.state.applySearch(term, columns)
	return s
}

func (s *TabularSource) ApplySort(column string, direction string) Source {
	s.state.applySort(column, direction)
	return s
}

func (s *TabularSource) ApplyFingerprint(fingerprint string) Source {
	s.state.fingerprint = fingerprint
	return s
}

func (s *TabularSource) isRemote() bool {
	return strings.HasPrefix(s.options.Path, "http://") || strings.HasPrefix(s.options.Path, "https://")
}

func (s *TabularSource) read(ctx context.Context) ([]byte, error) {
	if s.isRemote() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.options.Path, nil)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to build request")
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to fetch file")
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.Errorf("remote responded with status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}

	buf, err := os.ReadFile(s.options.Path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read file [%s]", s.options.Path)
	}
	return buf, nil
}

func (s *TabularSource) delimiter() rune {
	if s.options.Delimiter == "\\t" {
		return '\t'
	}
	return []rune(s.options.Delimiter)[0]
}

// isSpreadsheet 按扩展名识别 excelize 支持的电子表格格式
func (s *TabularSource) isSpreadsheet() bool {
	lower := strings.ToLower(s.options.Path)
	for _, ext := range []string{".xlsx", ".xlsm", ".xltx", ".xltm"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (s *TabularSource) readRecords(buf []byte) ([][]string, error) {
	if s.isSpreadsheet() {
		return s.readSpreadsheet(buf)
	}

	reader := csv.NewReader(bytes.NewReader(buf))
	reader.Comma = s.delimiter()
	if s.options.Comment != "" {
		reader.Comment = []rune(s.options.Comment)[0]
	}
	reader.TrimLeadingSpace = true
	// 允许短行，缺失的列补空字符串
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithMessage(err, "malformed tabular content")
	}
	return records, nil
}

func (s *TabularSource) readSpreadsheet(buf []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, errors.WithMessage(err, "malformed spreadsheet content")
	}
	defer file.Close()

	sheet := s.options.Sheet
	if sheet == "" {
		sheet = file.GetSheetName(0)
	}

	records, err := file.GetRows(sheet)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read sheet [%s]", sheet)
	}
	return records, nil
}

func (s *TabularSource) load(ctx context.Context) (RowSet, error) {
	buf, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.readRecords(buf)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("missing header row")
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		key := strings.TrimSpace(name)
		if mapped, ok := s.options.HeaderMapping[key]; ok {
			key = mapped
		}
		header[i] = key
	}

	rows := make(RowSet, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, key := range header {
			if i >= len(record) {
				row[key] = ""
				continue
			}
			row[key] = s.parseValue(record[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *TabularSource) parseValue(raw string) interface{} {
	if !s.options.TypedValues {
		return raw
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func (s *TabularSource) FetchAll(ctx context.Context) (RowSet, error) {
	return s.state.fetchFiltered(ctx, "tabular", s.config, s.load)
}

func (s *TabularSource) FetchPage(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	all, err := s.state.fetchFiltered(ctx, "tabular", s.config, s.load)
	if err != nil {
		return nil, nil, err
	}
	rows, info := paginate(all, page, pageSize)
	return rows, info, nil
}

func (s *TabularSource) Count(ctx context.Context) (int, error) {
	all, err := s.state.fetchFiltered(ctx, "tabular", s.config, s.load)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *TabularSource) Capabilities() Capabilities {
	return Capabilities{Pagination: true, Search: true, Sort: true, Filter: true}
}

func (s *TabularSource) IsAvailable(ctx context.Context) bool {
	if s.isRemote() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.options.Path, nil)
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

	_, err := os.Stat(s.options.Path)
	return err == nil
}
