package table

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/action"
	"github.com/hatlonely/tablex/cast"
	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/perm"
	"github.com/hatlonely/tablex/ref"
	"github.com/hatlonely/tablex/source"
)

var validate = validator.New()

type EngineOptions struct {
	// 表名，参与列能力名的派生
	Name string `cfg:"name" validate:"required"`

	// 权限资源名，为空时取表名
	Resource string `cfg:"resource"`

	// 数据源配置。每次渲染构造一个新实例，
	// 并发渲染之间不共享可变查询状态
	Source *ref.TypeOptions `cfg:"source"`

	// 数据源工厂，与 Source 二选一，用于代码注入
	SourceFactory func() (source.Source, error) `cfg:"-"`

	// 列集合
	Columns []*Column `cfg:"-"`

	// 过滤器集合
	Filters []*Filter `cfg:"-"`

	// 动作集合，行级和批量混排，渲染时按种类分流
	Actions []action.Action `cfg:"-"`

	// 转换管道，为 nil 时使用内置转换器的默认管道
	Cast *cast.Pipeline `cfg:"-"`

	// 权限链，为 nil 时不做权限裁剪
	Gate *perm.Gate `cfg:"-"`

	// 表级上下文，合并进动作判定的上下文
	Context map[string]interface{} `cfg:"-"`

	// 默认每页行数
	DefaultPerPage int `cfg:"defaultPerPage" def:"15" validate:"gte=0"`

	// 每页行数上限
	MaxPerPage int `cfg:"maxPerPage" def:"100" validate:"gte=0"`

	// 是否支持行选择，决定批量动作是否可用
	Selectable bool `cfg:"selectable"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`
}

// Engine 数据表引擎聚合根。组合一个数据源、列、过滤器、动作、
// 转换管道和权限链，对外只有 Render 一个操作。
// 配置在构造后只读，多个并发 Render 共享一个实例是安全的
type Engine struct {
	name          string
	resource      string
	sourceFactory func() (source.Source, error)
	columns       []*Column
	filters       []*Filter
	rowActions    []action.Action
	bulkActions   []action.Action
	pipeline      *cast.Pipeline
	gate          *perm.Gate
	tableContext  map[string]interface{}

	defaultPerPage int
	maxPerPage     int
	selectable     bool

	logger logger.Logger
}

func NewEngineWithOptions(options *EngineOptions) (*Engine, error) {
	if options == nil {
		return nil, configErrorf("options is nil")
	}
	if err := validate.Struct(options); err != nil {
		return nil, configErrorf("invalid options: %s", err.Error())
	}
	if options.Source == nil && options.SourceFactory == nil {
		return nil, configErrorf("either source or sourceFactory is required")
	}
	if options.DefaultPerPage <= 0 {
		options.DefaultPerPage = 15
	}
	if options.MaxPerPage <= 0 {
		options.MaxPerPage = 100
	}
	if options.DefaultPerPage > options.MaxPerPage {
		return nil, configErrorf("defaultPerPage [%d] exceeds maxPerPage [%d]", options.DefaultPerPage, options.MaxPerPage)
	}

	seenColumns := make(map[string]struct{})
	for _, column := range options.Columns {
		if column.Key == "" {
			return nil, configErrorf("column key is empty")
		}
		if _, ok := seenColumns[column.Key]; ok {
			return nil, configErrorf("duplicate column key [%s]", column.Key)
		}
		seenColumns[column.Key] = struct{}{}
	}

	seenFilters := make(map[string]struct{})
	for _, filter := range options.Filters {
		if filter.Key == "" {
			return nil, configErrorf("filter key is empty")
		}
		if _, ok := seenFilters[filter.Key]; ok {
			return nil, configErrorf("duplicate filter key [%s]", filter.Key)
		}
		seenFilters[filter.Key] = struct{}{}
	}

	seenActions := make(map[string]struct{})
	var rowActions, bulkActions []action.Action
	for _, a := range action.Sort(options.Actions) {
		key := a.Descriptor().Key
		if key == "" {
			return nil, configErrorf("action key is empty")
		}
		if _, ok := seenActions[key]; ok {
			return nil, configErrorf("duplicate action key [%s]", key)
		}
		seenActions[key] = struct{}{}

		// 批量动作在类型层面与行动作分流，永不进入行级列表
		if a.Kind() == action.KindBulk {
			bulkActions = append(bulkActions, a)
		} else {
			rowActions = append(rowActions, a)
		}
	}

	sourceFactory := options.SourceFactory
	if sourceFactory == nil {
		sourceOptions := options.Source
		sourceFactory = func() (source.Source, error) {
			return source.NewSourceWithOptions(sourceOptions)
		}
	}
	// 数据源配置错误在构造期暴露，渲染不应该是第一次发现配置坏掉的地方
	if _, err := sourceFactory(); err != nil {
		return nil, configErrorf("invalid source: %s", err.Error())
	}

	pipeline := options.Cast
	if pipeline == nil {
		var err error
		pipeline, err = defaultPipeline()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create cast pipeline")
		}
	}

	resource := options.Resource
	if resource == "" {
		resource = options.Name
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	return &Engine{
		name:           options.Name,
		resource:       resource,
		sourceFactory:  sourceFactory,
		columns:        options.Columns,
		filters:        options.Filters,
		rowActions:     rowActions,
		bulkActions:    bulkActions,
		pipeline:       pipeline,
		gate:           options.Gate,
		tableContext:   options.Context,
		defaultPerPage: options.DefaultPerPage,
		maxPerPage:     options.MaxPerPage,
		selectable:     options.Selectable,
		logger:         l.WithGroup("tableEngine"),
	}, nil
}

func defaultPipeline() (*cast.Pipeline, error) {
	pipeline, err := cast.NewPipelineWithOptions(nil)
	if err != nil {
		return nil, err
	}
	dateCaster, err := cast.NewDateCasterWithOptions(nil)
	if err != nil {
		return nil, err
	}
	boolCaster, err := cast.NewBoolCasterWithOptions(nil)
	if err != nil {
		return nil, err
	}
	currencyCaster, err := cast.NewCurrencyCasterWithOptions(nil)
	if err != nil {
		return nil, err
	}
	// 无映射的状态转换器兜底，状态列未配置映射时也输出结构化展示信息
	statusCaster, err := cast.NewStatusCasterWithOptions(&cast.StatusCasterOptions{})
	if err != nil {
		return nil, err
	}
	pipeline.Register(dateCaster)
	pipeline.Register(boolCaster)
	pipeline.Register(currencyCaster)
	pipeline.Register(statusCaster)
	return pipeline, nil
}

// querySpec 从请求派生归一化的查询形态
func (e *Engine) querySpec(req *Request) *QuerySpec {
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = e.defaultPerPage
	}
	if perPage > e.maxPerPage {
		perPage = e.maxPerPage
	}

	page := req.Page
	if page < 1 {
		page = 1
	}

	return &QuerySpec{
		Filters: req.Filters,
		Search:  req.Search,
		Sort:    req.Sort,
		Page:    page,
		PerPage: perPage,
	}
}

// allowed 权限检查。没有配置权限链时全部放行
func (e *Engine) allowed(ctx context.Context, rg *perm.RequestGate, actor perm.Actor, ability string, attrs map[string]interface{}) bool {
	if e.gate == nil {
		return true
	}
	return rg.Allows(ctx, actor, ability, perm.TypeRef(e.resource), attrs)
}

// Render 引擎的唯一公开操作。裁剪、抓取、转换、装配一次完成
func (e *Engine) Render(ctx context.Context, req *Request) (*Payload, error) {
	if req == nil {
		req = &Request{}
	}
	spec := e.querySpec(req)

	var rg *perm.RequestGate
	if e.gate != nil {
		rg = e.gate.ForRequest()
	}

	// 按权限裁剪列、过滤器、动作
	visibleColumns := e.pruneColumns(ctx, rg, req.Actor)
	visibleFilters := e.pruneFilters(ctx, rg, req.Actor)

	// 抓取当前页
	rows, info, err := e.fetch(ctx, spec, visibleColumns, req.Actor)
	if err != nil {
		fetchErr := newFetchError(err)
		e.logger.ErrorContext(ctx, "fetch failed",
			"table", e.name, "diagnostic", fetchErr.ID, "error", err.Error())
		return nil, fetchErr
	}

	actx := &action.Context{
		Actor: req.Actor,
		Extra: mergeContext(e.tableContext, req.Context),
	}

	// 逐行投影、转换、挂动作
	data := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out := e.projectRow(row, visibleColumns)
		rowCtx := *actx
		rowCtx.Row = row
		out["_actions"] = e.actionDescriptors(ctx, rg, req.Actor, &rowCtx, e.rowActions, row)
		data = append(data, out)
	}

	bulkCtx := *actx
	payload := &Payload{
		Data:    data,
		Columns: columnDescriptors(visibleColumns),
		Filters: filterDescriptors(visibleFilters),
		Actions: ActionsDescriptor{
			Row:  e.actionDescriptors(ctx, rg, req.Actor, actx, e.rowActions, nil),
			Bulk: e.actionDescriptors(ctx, rg, req.Actor, &bulkCtx, e.bulkActions, nil),
		},
		Pagination: Pagination{
			CurrentPage: info.Page,
			PerPage:     info.PageSize,
			Total:       info.Total,
			LastPage:    info.LastPage,
			From:        info.From,
			To:          info.To,
		},
		Meta: MetaFlags{
			Searchable: len(searchableKeys(visibleColumns)) > 0,
			Sortable:   anySortable(visibleColumns),
			Filterable: len(visibleFilters) > 0,
			Paginated:  true,
			Selectable: e.selectable && len(e.bulkActions) > 0,
		},
	}
	return payload, nil
}

func (e *Engine) pruneColumns(ctx context.Context, rg *perm.RequestGate, actor perm.Actor) []*Column {
	out := make([]*Column, 0, len(e.columns))
	for _, column := range e.columns {
		if column.Hidden {
			continue
		}
		ability := column.Ability
		if ability == "" {
			ability = perm.ColumnAbility(e.name)
		}
		if !e.allowed(ctx, rg, actor, ability, nil) {
			continue
		}
		out = append(out, column)
	}
	return out
}

func (e *Engine) pruneFilters(ctx context.Context, rg *perm.RequestGate, actor perm.Actor) []*Filter {
	out := make([]*Filter, 0, len(e.filters))
	for _, filter := range e.filters {
		ability := filter.Ability
		if ability == "" {
			ability = perm.FilterAbility(filter.Key)
		}
		if !e.allowed(ctx, rg, actor, ability, nil) {
			continue
		}
		out = append(out, filter)
	}
	return out
}

// fetch 构造一个新的数据源实例并抓取当前页
func (e *Engine) fetch(ctx context.Context, spec *QuerySpec, visibleColumns []*Column, actor perm.Actor) (source.RowSet, *source.PageInfo, error) {
	src, err := e.sourceFactory()
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to create source")
	}

	if len(spec.Filters) > 0 {
		src.ApplyFilters(spec.Filters)
	}
	if spec.Search != "" {
		src.ApplySearch(spec.Search, searchableKeys(visibleColumns))
	}
	if spec.Sort != nil && e.sortable(spec.Sort.Column, visibleColumns) {
		src.ApplySort(spec.Sort.Column, spec.Sort.Direction)
	}
	src.ApplyFingerprint(perm.Fingerprint(actor))

	return src.FetchPage(ctx, spec.Page, spec.PerPage)
}

func (e *Engine) sortable(column string, visibleColumns []*Column) bool {
	for _, c := range visibleColumns {
		if c.Key == column {
			return c.Sortable
		}
	}
	return false
}

// projectRow 两段式投影。先取所有可见列需要的原始字段的并集，
// 再让每一列基于完整的底层行计算并覆写自己的值，
// 组合列因此总能看到全部原始字段而不只是自己的键
func (e *Engine) projectRow(row map[string]interface{}, visibleColumns []*Column) map[string]interface{} {
	base := make(map[string]interface{})
	for _, column := range visibleColumns {
		for _, field := range column.RequiredFields() {
			if v, ok := row[field]; ok {
				base[field] = v
			}
		}
	}

	out := make(map[string]interface{}, len(visibleColumns))
	for _, column := range visibleColumns {
		raw := base[column.Key]
		out[column.Key] = e.pipeline.Cast(raw, &cast.Context{
			Column:        column.Key,
			Row:           row,
			Declared:      column.CastType,
			ColumnCasters: column.Casters,
			DisableAuto:   column.DisableAutoCast,
		})
	}
	return out
}

func (e *Engine) actionDescriptors(ctx context.Context, rg *perm.RequestGate, actor perm.Actor, actx *action.Context, actions []action.Action, row map[string]interface{}) []*ActionDescriptor {
	out := make([]*ActionDescriptor, 0, len(actions))
	for _, a := range actions {
		meta := a.Descriptor()

		ability := meta.Ability
		if ability == "" {
			ability = meta.Key
		}
		if !e.allowed(ctx, rg, actor, ability, nil) {
			continue
		}
		if !action.IsVisible(a, actx) {
			continue
		}

		descriptor := &ActionDescriptor{
			Key:      meta.Key,
			Kind:     a.Kind(),
			Label:    meta.Label,
			Icon:     meta.Icon,
			Tooltip:  meta.Tooltip,
			Group:    meta.Group,
			Order:    meta.Order,
			Disabled: !action.IsEnabled(a, actx),
			Confirm:  meta.Confirm,
		}

		switch v := a.(type) {
		case *action.NavigationAction:
			if row != nil {
				descriptor.URL = v.Resolve(row)
			}
		case *action.ExternalLinkAction:
			if row != nil {
				descriptor.URL = v.Resolve(row)
			}
		case *action.ModalAction:
			descriptor.Component = v.Component
		}

		out = append(out, descriptor)
	}
	return out
}

func columnDescriptors(columns []*Column) []*ColumnDescriptor {
	out := make([]*ColumnDescriptor, 0, len(columns))
	for _, c := range columns {
		out = append(out, &ColumnDescriptor{
			Key:        c.Key,
			Label:      c.Label,
			Searchable: c.Searchable,
			Sortable:   c.Sortable,
		})
	}
	return out
}

func filterDescriptors(filters []*Filter) []*FilterDescriptor {
	out := make([]*FilterDescriptor, 0, len(filters))
	for _, f := range filters {
		out = append(out, &FilterDescriptor{
			Key:     f.Key,
			Label:   f.Label,
			Kind:    f.Kind,
			Options: f.Options,
		})
	}
	return out
}

func searchableKeys(columns []*Column) []string {
	var out []string
	for _, c := range columns {
		if c.Searchable {
			out = append(out, c.Key)
		}
	}
	return out
}

func anySortable(columns []*Column) bool {
	for _, c := range columns {
		if c.Sortable {
			return true
		}
	}
	return false
}

func mergeContext(table map[string]interface{}, call map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(table)+len(call))
	for k, v := range table {
		out[k] = v
	}
	for k, v := range call {
		out[k] = v
	}
	return out
}
