package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hatlonely/tablex/cache"
	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
)

// Relation 关联实体的元信息，搜索关联列时用于改写 EXISTS 子查询
type Relation struct {
	// 关联表名
	Table string `cfg:"table"`

	// 关联表上指向本表的外键列
	ForeignKey string `cfg:"foreignKey"`

	// 本表上被外键引用的列
	LocalKey string `cfg:"localKey" def:"id"`
}

type SQLSourceOptions struct {
	// 数据库驱动，支持 sqlite 和 mysql
	Driver string `cfg:"driver" def:"sqlite"`

	// 数据源连接串
	DSN string `cfg:"dsn"`

	// 表名
	Table string `cfg:"table"`

	// 子查询语句，与 Table 二选一，作为查询的数据来源
	SubQuery string `cfg:"subQuery"`

	// 关联元信息，键为搜索路径中的关联名
	Relations map[string]*Relation `cfg:"relations"`

	// 缓存策略。查询型后端本身足够快且强一致，默认不启用缓存
	Cache *CachePolicy `cfg:"cache"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`

	// DB 复用已有连接，与 Driver/DSN 二选一
	DB *gorm.DB `cfg:"-"`
}

// SQLSource 查询型数据源。过滤、搜索、排序、分页、计数
// 全部下推到存储引擎的原生查询能力
type SQLSource struct {
	state     *queryState
	db        *gorm.DB
	table     string
	subQuery  string
	relations map[string]*Relation
	config    string
	logger    logger.Logger
}

func NewSQLSourceWithOptions(options *SQLSourceOptions) (*SQLSource, error) {
	if options == nil {
		return nil, errors.New("sql source options is nil")
	}
	if options.Table == "" && options.SubQuery == "" {
		return nil, errors.New("either table or subQuery is required")
	}

	db := options.DB
	if db == nil {
		if options.DSN == "" {
			return nil, errors.New("dsn is required")
		}
		var dialector gorm.Dialector
		switch options.Driver {
		case "", "sqlite":
			dialector = sqlite.Open(options.DSN)
		case "mysql":
			dialector = mysql.Open(options.DSN)
		default:
			return nil, errors.Errorf("unsupported driver [%s]", options.Driver)
		}
		var err error
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, errors.WithMessage(err, "failed to open database")
		}
	}

	state, err := newQueryState(options.Cache, 0)
	if err != nil {
		return nil, err
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	return &SQLSource{
		state:     state,
		db:        db,
		table:     options.Table,
		subQuery:  options.SubQuery,
		relations: options.Relations,
		config:    fmt.Sprintf("driver=%s,table=%s,subQuery=%s", options.Driver, options.Table, options.SubQuery),
		logger:    l.WithGroup("sqlSource"),
	}, nil
}

func (s *SQLSource) ApplyFilters(filters map[string]interface{}) Source {
	s.state.applyFilters(filters)
	return s
}

func (s *SQLSource) ApplySearch(term string, columns []string) Source {
	s.state.applySearch(term, columns)
	return s
}

func (s *SQLSource) ApplySort(column string, direction string) Source {
	s.state.applySort(column, direction)
	return s
}

func (s *SQLSource) ApplyFingerprint(fingerprint string) Source {
	s.state.fingerprint = fingerprint
	return s
}

// session 组装携带当前过滤和搜索条件的查询会话
func (s *SQLSource) session(ctx context.Context) (*gorm.DB, error) {
	tx := s.db.WithContext(ctx)
	if s.subQuery != "" {
		tx = tx.Table("(?) AS tablex_sub", s.db.Raw(s.subQuery))
	} else {
		tx = tx.Table(s.table)
	}

	if fq := s.state.filterQuery(); !fq.Empty() {
		sql, args, err := fq.ToSQL()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to build filter condition")
		}
		tx = tx.Where(sql, args...)
	}

	if s.state.searchTerm != "" && len(s.state.searchCols) > 0 {
		sql, args := s.searchCondition()
		if sql != "" {
			tx = tx.Where(sql, args...)
		}
	}

	return tx, nil
}

// searchCondition 把搜索状态编译为跨列 OR 的 LIKE 条件。
// 点号路径表示搜索关联实体的列，改写为 EXISTS 子查询；
// 没有配置关联元信息的路径记录告警后跳过
func (s *SQLSource) searchCondition() (string, []interface{}) {
	term := "%" + strings.ToLower(s.state.searchTerm) + "%"

	var parts []string
	var args []interface{}
	for _, column := range s.state.searchCols {
		name, rest, dotted := strings.Cut(column, ".")
		if !dotted {
			parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE ?", column))
			args = append(args, term)
			continue
		}

		rel, ok := s.relations[name]
		if !ok || s.table == "" {
			s.logger.Warn("relation metadata missing, search column skipped", "column", column)
			continue
		}
		localKey := rel.LocalKey
		if localKey == "" {
			localKey = "id"
		}
		parts = append(parts, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s AND LOWER(%s.%s) LIKE ?)",
			rel.Table, rel.Table, rel.ForeignKey, s.table, localKey, rel.Table, rest,
		))
		args = append(args, term)
	}

	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func (s *SQLSource) fetch(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	doLoad := func(ctx context.Context) (cache.CachedRows, error) {
		tx, err := s.session(ctx)
		if err != nil {
			return cache.CachedRows{}, err
		}

		var total int64
		if err := tx.Count(&total).Error; err != nil {
			return cache.CachedRows{}, errors.WithMessage(err, "count failed")
		}

		if s.state.sortColumn != "" {
			direction := "ASC"
			if s.state.sortDesc {
				direction = "DESC"
			}
			tx = tx.Order(fmt.Sprintf("%s %s", s.state.sortColumn, direction))
		}

		if pageSize > 0 {
			lastPage := int(total+int64(pageSize)-1) / pageSize
			if lastPage < 1 {
				lastPage = 1
			}
			p := page
			if p < 1 {
				p = 1
			}
			if p > lastPage {
				p = lastPage
			}
			tx = tx.Offset((p - 1) * pageSize).Limit(pageSize)
		}

		var rows []map[string]interface{}
		if err := tx.Find(&rows).Error; err != nil {
			return cache.CachedRows{}, errors.WithMessage(err, "query failed")
		}
		return cache.CachedRows{Rows: rows, Total: int(total)}, nil
	}

	var cached cache.CachedRows
	var err error
	if s.state.gateway == nil {
		cached, err = doLoad(ctx)
	} else {
		parts := s.state.keyParts("sql", s.config)
		parts.Config = fmt.Sprintf("%s,page=%d,pageSize=%d", parts.Config, page, pageSize)
		key := s.state.gateway.Key(parts)
		cached, err = s.state.gateway.GetOrLoad(ctx, key, s.state.cacheTTL, s.state.cacheTags, doLoad)
		cached.Rows = copyRows(cached.Rows)
	}
	if err != nil {
		return nil, nil, err
	}

	var info *PageInfo
	if pageSize > 0 {
		_, info = paginateInfo(cached.Total, page, pageSize)
	}
	return cached.Rows, info, nil
}

func (s *SQLSource) FetchAll(ctx context.Context) (RowSet, error) {
	rows, _, err := s.fetch(ctx, 0, 0)
	return rows, err
}

func (s *SQLSource) FetchPage(ctx context.Context, page int, pageSize int) (RowSet, *PageInfo, error) {
	if pageSize < 1 {
		pageSize = 1
	}
	return s.fetch(ctx, page, pageSize)
}

func (s *SQLSource) Count(ctx context.Context) (int, error) {
	tx, err := s.session(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, errors.WithMessage(err, "count failed")
	}
	return int(total), nil
}

func (s *SQLSource) Capabilities() Capabilities {
	return Capabilities{Pagination: true, Search: true, Sort: true, Filter: true}
}

func (s *SQLSource) IsAvailable(ctx context.Context) bool {
	db, err := s.db.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}
