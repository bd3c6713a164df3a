package tabledef

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/action"
	"github.com/hatlonely/tablex/cast"
	"github.com/hatlonely/tablex/ref"
	"github.com/hatlonely/tablex/table"
)

// Def 声明式表定义。支持从 JSON、YAML、TOML、INI 文件加载，
// 覆盖引擎配置中可以静态描述的部分。
// 回调类和批量类动作依赖代码里的处理函数，不能在定义文件里声明
type Def struct {
	// 表名
	Name string `json:"name" yaml:"name" toml:"name" ini:"name" validate:"required"`

	// 权限资源名，为空时取表名
	Resource string `json:"resource" yaml:"resource" toml:"resource" ini:"resource"`

	// 数据源定义
	Source *SourceDef `json:"source" yaml:"source" toml:"source" ini:"-" validate:"required"`

	// 列定义
	Columns []*ColumnDef `json:"columns" yaml:"columns" toml:"columns" ini:"-" validate:"min=1,dive"`

	// 过滤器定义
	Filters []*FilterDef `json:"filters" yaml:"filters" toml:"filters" ini:"-" validate:"dive"`

	// 动作定义
	Actions []*ActionDef `json:"actions" yaml:"actions" toml:"actions" ini:"-" validate:"dive"`

	// 默认每页行数，为 0 时使用引擎默认值
	DefaultPerPage int `json:"defaultPerPage" yaml:"defaultPerPage" toml:"defaultPerPage" ini:"defaultPerPage" validate:"gte=0"`

	// 每页行数上限，为 0 时使用引擎默认值
	MaxPerPage int `json:"maxPerPage" yaml:"maxPerPage" toml:"maxPerPage" ini:"maxPerPage" validate:"gte=0"`

	// 是否支持行选择
	Selectable bool `json:"selectable" yaml:"selectable" toml:"selectable" ini:"selectable"`
}

// SourceDef 数据源定义，kind 选择后端，options 原样传给对应的构造函数
type SourceDef struct {
	Kind    string                 `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=sql memory api document tabular"`
	Options map[string]interface{} `json:"options" yaml:"options" toml:"options"`
}

// ColumnDef 列定义
type ColumnDef struct {
	Key             string   `json:"key" yaml:"key" toml:"key" ini:"key" validate:"required"`
	Label           string   `json:"label" yaml:"label" toml:"label" ini:"label"`
	Hidden          bool     `json:"hidden" yaml:"hidden" toml:"hidden" ini:"hidden"`
	Searchable      bool     `json:"searchable" yaml:"searchable" toml:"searchable" ini:"searchable"`
	Sortable        bool     `json:"sortable" yaml:"sortable" toml:"sortable" ini:"sortable"`
	CastType        string   `json:"castType" yaml:"castType" toml:"castType" ini:"castType" validate:"omitempty,oneof=date currency status boolean custom"`
	DisableAutoCast bool     `json:"disableAutoCast" yaml:"disableAutoCast" toml:"disableAutoCast" ini:"disableAutoCast"`
	Fields          []string `json:"fields" yaml:"fields" toml:"fields" ini:"fields" delim:","`
	Ability         string   `json:"ability" yaml:"ability" toml:"ability" ini:"ability"`
}

// FilterOptionDef 过滤器候选值定义
type FilterOptionDef struct {
	Value string `json:"value" yaml:"value" toml:"value" validate:"required"`
	Label string `json:"label" yaml:"label" toml:"label"`
}

// FilterDef 过滤器定义
type FilterDef struct {
	Key     string             `json:"key" yaml:"key" toml:"key" ini:"key" validate:"required"`
	Label   string             `json:"label" yaml:"label" toml:"label" ini:"label"`
	Kind    string             `json:"kind" yaml:"kind" toml:"kind" ini:"kind" validate:"omitempty,oneof=select multiSelect text date"`
	Options []*FilterOptionDef `json:"options" yaml:"options" toml:"options" ini:"-" validate:"dive"`
	Ability string             `json:"ability" yaml:"ability" toml:"ability" ini:"ability"`
}

// ConfirmDef 动作确认信息定义
type ConfirmDef struct {
	Title   string `json:"title" yaml:"title" toml:"title" ini:"title"`
	Message string `json:"message" yaml:"message" toml:"message" ini:"message"`
}

// ActionDef 动作定义。只覆盖纯声明式的种类
type ActionDef struct {
	Key     string `json:"key" yaml:"key" toml:"key" ini:"key" validate:"required"`
	Kind    string `json:"kind" yaml:"kind" toml:"kind" ini:"kind" validate:"required,oneof=navigation externalLink modal"`
	Label   string `json:"label" yaml:"label" toml:"label" ini:"label"`
	Icon    string `json:"icon" yaml:"icon" toml:"icon" ini:"icon"`
	Tooltip string `json:"tooltip" yaml:"tooltip" toml:"tooltip" ini:"tooltip"`
	Group   string `json:"group" yaml:"group" toml:"group" ini:"group"`
	Order   int    `json:"order" yaml:"order" toml:"order" ini:"order"`

	// 跳转类动作的目标模板，支持 {field} 占位符
	Route string `json:"route" yaml:"route" toml:"route" ini:"route"`

	// 弹窗类动作的组件标识
	Component string `json:"component" yaml:"component" toml:"component" ini:"component"`

	Confirm *ConfirmDef `json:"confirm" yaml:"confirm" toml:"confirm" ini:"-"`
	Ability string      `json:"ability" yaml:"ability" toml:"ability" ini:"ability"`
}

const sourceNamespace = "github.com/hatlonely/tablex/source"

var sourceKindType = map[string]string{
	"sql":      "SQLSource",
	"memory":   "MemorySource",
	"api":      "APISource",
	"document": "DocumentSource",
	"tabular":  "TabularSource",
}

// rawOptions 借助 JSON 把定义文件里的松散键值转换成构造函数的参数类型。
// 字段名按 JSON 的大小写不敏感规则匹配
type rawOptions map[string]interface{}

func (o rawOptions) ConvertTo(object interface{}) error {
	buf, err := json.Marshal(map[string]interface{}(o))
	if err != nil {
		return errors.WithMessage(err, "failed to marshal source options")
	}
	return json.Unmarshal(buf, object)
}

// EngineOptions 把定义转换为引擎配置
func (d *Def) EngineOptions() (*table.EngineOptions, error) {
	sourceType, ok := sourceKindType[d.Source.Kind]
	if !ok {
		return nil, errors.Errorf("unknown source kind [%s]", d.Source.Kind)
	}

	options := &table.EngineOptions{
		Name:     d.Name,
		Resource: d.Resource,
		Source: &ref.TypeOptions{
			Namespace: sourceNamespace,
			Type:      sourceType,
			Options:   rawOptions(d.Source.Options),
		},
		DefaultPerPage: d.DefaultPerPage,
		MaxPerPage:     d.MaxPerPage,
		Selectable:     d.Selectable,
	}

	for _, c := range d.Columns {
		options.Columns = append(options.Columns, &table.Column{
			Key:             c.Key,
			Label:           c.Label,
			Hidden:          c.Hidden,
			Searchable:      c.Searchable,
			Sortable:        c.Sortable,
			CastType:        cast.CastType(c.CastType),
			DisableAutoCast: c.DisableAutoCast,
			Fields:          c.Fields,
			Ability:         c.Ability,
		})
	}

	for _, f := range d.Filters {
		filter := &table.Filter{
			Key:     f.Key,
			Label:   f.Label,
			Kind:    f.Kind,
			Ability: f.Ability,
		}
		for _, o := range f.Options {
			filter.Options = append(filter.Options, &table.FilterOption{Value: o.Value, Label: o.Label})
		}
		options.Filters = append(options.Filters, filter)
	}

	for _, a := range d.Actions {
		act, err := a.build()
		if err != nil {
			return nil, err
		}
		options.Actions = append(options.Actions, act)
	}

	return options, nil
}

func (a *ActionDef) build() (action.Action, error) {
	meta := action.Meta{
		Key:     a.Key,
		Label:   a.Label,
		Icon:    a.Icon,
		Tooltip: a.Tooltip,
		Group:   a.Group,
		Order:   a.Order,
		Ability: a.Ability,
	}
	if a.Confirm != nil {
		meta.Confirm = &action.Confirm{Title: a.Confirm.Title, Message: a.Confirm.Message}
	}

	switch action.Kind(a.Kind) {
	case action.KindNavigation:
		return &action.NavigationAction{Meta: meta, RouteTemplate: a.Route}, nil
	case action.KindExternalLink:
		return &action.ExternalLinkAction{Meta: meta, URLTemplate: a.Route}, nil
	case action.KindModal:
		return &action.ModalAction{Meta: meta, Component: a.Component}, nil
	}
	return nil, errors.Errorf("unsupported action kind [%s]", a.Kind)
}
