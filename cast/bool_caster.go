package cast

type BoolCasterOptions struct {
	// 真值文案
	TrueLabel string `cfg:"trueLabel" def:"Yes"`

	// 假值文案
	FalseLabel string `cfg:"falseLabel" def:"No"`

	// 优先级
	Priority int `cfg:"priority"`

	// 是否参与自动识别，默认只识别真正的布尔值
	AutoDetect bool `cfg:"autoDetect" def:"true"`
}

// BoolCaster 布尔转换器。接受布尔值以及 0/1 和
// "true"/"false" 字面量，输出配置的文案
type BoolCaster struct {
	trueLabel  string
	falseLabel string
	priority   int
	autoDetect bool
}

func NewBoolCasterWithOptions(options *BoolCasterOptions) (*BoolCaster, error) {
	if options == nil {
		options = &BoolCasterOptions{AutoDetect: true}
	}
	if options.TrueLabel == "" {
		options.TrueLabel = "Yes"
	}
	if options.FalseLabel == "" {
		options.FalseLabel = "No"
	}

	return &BoolCaster{
		trueLabel:  options.TrueLabel,
		falseLabel: options.FalseLabel,
		priority:   options.Priority,
		autoDetect: options.AutoDetect,
	}, nil
}

func (c *BoolCaster) Type() CastType {
	return CastTypeBoolean
}

func (c *BoolCaster) Priority() int {
	return c.priority
}

func (c *BoolCaster) AutoDetect() bool {
	return c.autoDetect
}

func (c *BoolCaster) parse(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	case string:
		switch v {
		case "true", "True":
			return true, true
		case "false", "False":
			return false, true
		}
	}
	return false, false
}

func (c *BoolCaster) CanCast(value interface{}, cctx *Context) bool {
	// 自动识别探测阶段只认真正的布尔值，
	// 0/1 和字面量太容易误伤普通列
	if cctx != nil && cctx.Detecting {
		_, ok := value.(bool)
		return ok
	}
	_, ok := c.parse(value)
	return ok
}

func (c *BoolCaster) Cast(value interface{}, cctx *Context) (interface{}, error) {
	b, _ := c.parse(value)
	if b {
		return c.trueLabel, nil
	}
	return c.falseLabel, nil
}
