package cast

import (
	"github.com/hatlonely/tablex/query"
)

// StatusLabel 单个状态值的展示信息
type StatusLabel struct {
	// 展示文案
	Label string `cfg:"label"`

	// 严重程度，如 success、warning、danger，供展示层着色
	Severity string `cfg:"severity"`
}

type StatusCasterOptions struct {
	// 原始值到展示信息的映射，未出现的值退化为原值文案加 default 严重程度
	Mapping map[string]*StatusLabel `cfg:"mapping"`

	// 未映射的值的处理方式，true 时原样通过，false 时输出退化的展示信息
	PassUnknown bool `cfg:"passUnknown" def:"true"`

	// 优先级
	Priority int `cfg:"priority"`
}

// StatusCaster 状态转换器。把原始状态值映射为带严重程度的
// 结构化展示信息，不参与自动识别
type StatusCaster struct {
	mapping     map[string]*StatusLabel
	passUnknown bool
	priority    int
}

func NewStatusCasterWithOptions(options *StatusCasterOptions) (*StatusCaster, error) {
	if options == nil {
		options = &StatusCasterOptions{}
	}

	return &StatusCaster{
		mapping:     options.Mapping,
		passUnknown: options.PassUnknown,
		priority:    options.Priority,
	}, nil
}

func (c *StatusCaster) Type() CastType {
	return CastTypeStatus
}

func (c *StatusCaster) Priority() int {
	return c.priority
}

func (c *StatusCaster) AutoDetect() bool {
	return false
}

func (c *StatusCaster) CanCast(value interface{}, cctx *Context) bool {
	if value == nil {
		return false
	}
	if _, ok := c.mapping[query.Stringify(value)]; ok {
		return true
	}
	return !c.passUnknown
}

func (c *StatusCaster) Cast(value interface{}, cctx *Context) (interface{}, error) {
	key := query.Stringify(value)
	label, ok := c.mapping[key]
	if !ok {
		label = &StatusLabel{Label: key, Severity: "default"}
	}
	return map[string]interface{}{
		"value":    value,
		"label":    label.Label,
		"severity": label.Severity,
	}, nil
}
