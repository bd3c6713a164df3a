package cast

import (
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

// CastType 值的语义类型，封闭集合，每种类型对应一组注册的转换器
type CastType string

const (
	CastTypeDate     CastType = "date"
	CastTypeCurrency CastType = "currency"
	CastTypeStatus   CastType = "status"
	CastTypeBoolean  CastType = "boolean"
	CastTypeCustom   CastType = "custom"
)

// Context 一次转换的求值上下文
type Context struct {
	// 列键
	Column string

	// 完整的底层行，组合列的转换器需要看到所有原始字段
	Row map[string]interface{}

	// 本次调用显式指定的类型，优先级最高
	Override CastType

	// 列声明的类型
	Declared CastType

	// 列自带的转换器，先于全局转换器执行
	ColumnCasters []Caster

	// 是否跳过自动类型识别。列可以只用自己的转换器
	DisableAuto bool

	// 当前处于自动识别探测阶段。探测阶段转换器应当只接受
	// 无歧义的值，避免把普通列误识别成自己的类型
	Detecting bool
}

// Caster 单个类型转换器。CanCast 先判断能否接受当前值，
// 不能接受时被跳过而不算错误
type Caster interface {
	Type() CastType
	// Priority 同类型内的执行顺序，大的先执行
	Priority() int
	// AutoDetect 是否参与自动类型识别
	AutoDetect() bool
	CanCast(value interface{}, cctx *Context) bool
	Cast(value interface{}, cctx *Context) (interface{}, error)
}

// NewCasterWithOptions 根据类型配置构造转换器
func NewCasterWithOptions(options *ref.TypeOptions) (Caster, error) {
	if options == nil {
		return nil, errors.New("caster options is nil")
	}

	ref.MustRegisterT[*DateCaster](NewDateCasterWithOptions)
	ref.MustRegisterT[*CurrencyCaster](NewCurrencyCasterWithOptions)
	ref.MustRegisterT[*StatusCaster](NewStatusCasterWithOptions)
	ref.MustRegisterT[*BoolCaster](NewBoolCasterWithOptions)

	v, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create caster")
	}

	caster, ok := v.(Caster)
	if !ok {
		return nil, errors.Errorf("type [%s] is not a caster", options.Type)
	}
	return caster, nil
}
