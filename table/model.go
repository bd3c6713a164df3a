package table

import (
	"github.com/hatlonely/tablex/action"
	"github.com/hatlonely/tablex/cast"
	"github.com/hatlonely/tablex/perm"
)

// Column 输出列的描述
type Column struct {
	// 键，在表内唯一，也是默认的取值字段
	Key string `cfg:"key"`

	// 展示文案
	Label string `cfg:"label"`

	// 隐藏列不出现在输出里，但仍可参与搜索配置校验
	Hidden bool `cfg:"hidden"`

	// 是否参与全局搜索
	Searchable bool `cfg:"searchable"`

	// 是否允许按此列排序
	Sortable bool `cfg:"sortable"`

	// 列声明的语义类型，优先于自动识别
	CastType cast.CastType `cfg:"castType"`

	// 列自带的转换器，先于全局转换器执行
	Casters []cast.Caster `cfg:"-"`

	// 是否跳过自动类型识别
	DisableAutoCast bool `cfg:"disableAutoCast"`

	// 此列需要的底层原始字段。组合列可以声明多个，
	// 为空时默认只需要与键同名的字段
	Fields []string `cfg:"fields"`

	// 能力名覆盖，为空时用表级派生能力
	Ability string `cfg:"ability"`
}

// RequiredFields 此列需要的原始字段集合
func (c *Column) RequiredFields() []string {
	if len(c.Fields) > 0 {
		return c.Fields
	}
	return []string{c.Key}
}

// FilterOption 过滤器的一个候选值
type FilterOption struct {
	Value string `cfg:"value" json:"value"`
	Label string `cfg:"label" json:"label"`
}

// Filter 过滤器描述
type Filter struct {
	// 键，对应数据源的过滤列
	Key string `cfg:"key"`

	// 展示文案
	Label string `cfg:"label"`

	// 过滤器形态：select、multiSelect、text、date
	Kind string `cfg:"kind"`

	// select 形态的候选值
	Options []*FilterOption `cfg:"options"`

	// 能力名覆盖，为空时派生为 use_{key}_filter
	Ability string `cfg:"ability"`
}

// SortSpec 请求中的排序描述
type SortSpec struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// Request Render 的入参形态
type Request struct {
	Search  string                 `json:"search,omitempty"`
	Filters map[string]interface{} `json:"filters,omitempty"`
	Sort    *SortSpec              `json:"sort,omitempty"`
	Page    int                    `json:"page,omitempty"`
	PerPage int                    `json:"per_page,omitempty"`

	// 请求者身份
	Actor perm.Actor `json:"-"`

	// 调用级上下文，与表级上下文合并后传给动作判定
	Context map[string]interface{} `json:"-"`
}

// QuerySpec 归一化后的请求形态。PerPage 总是落在 [1, max] 内，
// 页码越界由数据源退到最近的合法页
type QuerySpec struct {
	Filters map[string]interface{}
	Search  string
	Sort    *SortSpec
	Page    int
	PerPage int
}

// ColumnDescriptor 输出的列元信息
type ColumnDescriptor struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Searchable bool   `json:"searchable"`
	Sortable   bool   `json:"sortable"`
}

// FilterDescriptor 输出的过滤器元信息
type FilterDescriptor struct {
	Key     string          `json:"key"`
	Label   string          `json:"label"`
	Kind    string          `json:"kind"`
	Options []*FilterOption `json:"options,omitempty"`
}

// ActionDescriptor 输出的动作元信息。
// 不可见的动作不会出现，可见但不可用的带禁用标记
type ActionDescriptor struct {
	Key      string          `json:"key"`
	Kind     action.Kind     `json:"kind"`
	Label    string          `json:"label"`
	Icon     string          `json:"icon,omitempty"`
	Tooltip  string          `json:"tooltip,omitempty"`
	Group    string          `json:"group,omitempty"`
	Order    int             `json:"order"`
	Disabled bool            `json:"disabled"`
	Confirm  *action.Confirm `json:"confirm,omitempty"`

	// 跳转类动作按行展开后的目标
	URL string `json:"url,omitempty"`

	// 弹窗类动作的组件标识
	Component string `json:"component,omitempty"`
}

// ActionsDescriptor 行级动作和批量动作分开输出
type ActionsDescriptor struct {
	Row  []*ActionDescriptor `json:"row"`
	Bulk []*ActionDescriptor `json:"bulk"`
}

// Pagination 分页元信息
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
	From        int `json:"from"`
	To          int `json:"to"`
}

// MetaFlags 供展示层使用的能力标记
type MetaFlags struct {
	Searchable bool `json:"searchable"`
	Sortable   bool `json:"sortable"`
	Filterable bool `json:"filterable"`
	Paginated  bool `json:"paginated"`
	Selectable bool `json:"selectable"`
}

// Payload Render 的输出契约，可直接序列化为 JSON
type Payload struct {
	Data       []map[string]interface{} `json:"data"`
	Columns    []*ColumnDescriptor      `json:"columns"`
	Filters    []*FilterDescriptor      `json:"filters"`
	Actions    ActionsDescriptor        `json:"actions"`
	Pagination Pagination               `json:"pagination"`
	Meta       MetaFlags                `json:"meta"`
}
