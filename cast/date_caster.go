package cast

import (
	"time"

	"github.com/pkg/errors"
)

type DateCasterOptions struct {
	// 按顺序尝试的输入格式
	Layouts []string `cfg:"layouts"`

	// 输出格式
	Output string `cfg:"output" def:"2006-01-02 15:04:05"`

	// 输出时区，如 Asia/Shanghai，为空时保持原时区
	Location string `cfg:"location"`

	// 优先级
	Priority int `cfg:"priority"`

	// 是否参与自动识别
	AutoDetect bool `cfg:"autoDetect" def:"true"`
}

// DateCaster 日期转换器。接受 time.Time、Unix 秒时间戳
// 和可按配置格式解析的字符串，输出统一格式的字符串
type DateCaster struct {
	layouts    []string
	output     string
	location   *time.Location
	priority   int
	autoDetect bool
}

func NewDateCasterWithOptions(options *DateCasterOptions) (*DateCaster, error) {
	if options == nil {
		options = &DateCasterOptions{AutoDetect: true}
	}
	if options.Output == "" {
		options.Output = "2006-01-02 15:04:05"
	}
	layouts := options.Layouts
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	}

	var location *time.Location
	if options.Location != "" {
		var err error
		location, err = time.LoadLocation(options.Location)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid location [%s]", options.Location)
		}
	}

	return &DateCaster{
		layouts:    layouts,
		output:     options.Output,
		location:   location,
		priority:   options.Priority,
		autoDetect: options.AutoDetect,
	}, nil
}

func (c *DateCaster) Type() CastType {
	return CastTypeDate
}

func (c *DateCaster) Priority() int {
	return c.priority
}

func (c *DateCaster) AutoDetect() bool {
	return c.autoDetect
}

func (c *DateCaster) parse(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range c.layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (c *DateCaster) CanCast(value interface{}, cctx *Context) bool {
	_, ok := c.parse(value)
	return ok
}

func (c *DateCaster) Cast(value interface{}, cctx *Context) (interface{}, error) {
	t, ok := c.parse(value)
	if !ok {
		return nil, errors.Errorf("cannot parse [%v] as date", value)
	}
	if c.location != nil {
		t = t.In(c.location)
	}
	return t.Format(c.output), nil
}
