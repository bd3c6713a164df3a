package cast

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
)

type PipelineOptions struct {
	// 全局转换器配置列表，也可以在构造后用 Register 注入
	Casters []*ref.TypeOptions `cfg:"casters"`

	// 替换默认的启发式规则表
	InferRules []InferRule `cfg:"-"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`
}

// Pipeline 类型转换管道。按类型持有转换器链，
// 对每个值先解析语义类型再依次执行匹配的转换器。
// 转换失败只记录日志并保留当前值，绝不中断整行的渲染
type Pipeline struct {
	casters map[CastType][]Caster
	// 参与自动识别的转换器，按优先级从大到小，同优先级按注册顺序
	auto       []Caster
	inferRules []InferRule
	logger     logger.Logger
}

func NewPipelineWithOptions(options *PipelineOptions) (*Pipeline, error) {
	if options == nil {
		options = &PipelineOptions{}
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	rules := options.InferRules
	if rules == nil {
		rules = DefaultInferRules()
	}

	p := &Pipeline{
		casters:    make(map[CastType][]Caster),
		inferRules: rules,
		logger:     l.WithGroup("castPipeline"),
	}

	for _, caster := range options.Casters {
		c, err := NewCasterWithOptions(caster)
		if err != nil {
			return nil, err
		}
		p.Register(c)
	}
	return p, nil
}

// Register 注册全局转换器，同类型内按优先级从大到小排序
func (p *Pipeline) Register(caster Caster) {
	t := caster.Type()
	p.casters[t] = append(p.casters[t], caster)
	sort.SliceStable(p.casters[t], func(i, j int) bool {
		return p.casters[t][i].Priority() > p.casters[t][j].Priority()
	})

	if caster.AutoDetect() {
		p.auto = append(p.auto, caster)
		sort.SliceStable(p.auto, func(i, j int) bool {
			return p.auto[i].Priority() > p.auto[j].Priority()
		})
	}
}

// Resolve 解析值的语义类型。顺序：调用级覆盖、列声明、
// 自动识别、列名启发式。都未命中时返回空，值将原样通过
func (p *Pipeline) Resolve(value interface{}, cctx *Context) CastType {
	if cctx.Override != "" {
		return cctx.Override
	}
	if cctx.Declared != "" {
		return cctx.Declared
	}
	if cctx.DisableAuto {
		return ""
	}

	probe := *cctx
	probe.Detecting = true
	for _, caster := range p.auto {
		if caster.CanCast(value, &probe) {
			return caster.Type()
		}
	}

	return Infer(p.inferRules, cctx.Column, value)
}

// Cast 对单个值执行转换。列自带的转换器先执行，
// 然后是解析出的类型对应的全局转换器链
func (p *Pipeline) Cast(value interface{}, cctx *Context) interface{} {
	if cctx == nil {
		cctx = &Context{}
	}

	value = p.applyChain(cctx.ColumnCasters, value, cctx)

	t := p.Resolve(value, cctx)
	if t == "" {
		return value
	}
	return p.applyChain(p.casters[t], value, cctx)
}

// applyChain 依次执行转换器链。不接受当前值的转换器被跳过，
// 出错的转换器记录日志后跳过，值保持此前的最好结果
func (p *Pipeline) applyChain(casters []Caster, value interface{}, cctx *Context) interface{} {
	for _, caster := range casters {
		if !caster.CanCast(value, cctx) {
			continue
		}
		casted, err := caster.Cast(value, cctx)
		if err != nil {
			p.logger.Warn("cast failed, value kept as is",
				"column", cctx.Column, "type", string(caster.Type()), "error", err.Error())
			continue
		}
		value = casted
	}
	return value
}
