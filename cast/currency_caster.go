package cast

import (
	"fmt"
	"strconv"
	"strings"
)

type CurrencyCasterOptions struct {
	// 货币符号
	Symbol string `cfg:"symbol" def:"$"`

	// 小数位数
	Decimals int `cfg:"decimals" def:"2"`

	// 千分位分隔符
	ThousandsSep string `cfg:"thousandsSep" def:","`

	// 优先级
	Priority int `cfg:"priority"`
}

// CurrencyCaster 货币格式化。只接受数值，不参与自动识别，
// 数值本身无法区分货币和普通数字，识别交给列名启发式
type CurrencyCaster struct {
	symbol       string
	decimals     int
	thousandsSep string
	priority     int
}

func NewCurrencyCasterWithOptions(options *CurrencyCasterOptions) (*CurrencyCaster, error) {
	if options == nil {
		options = &CurrencyCasterOptions{}
	}
	if options.Symbol == "" {
		options.Symbol = "$"
	}
	if options.Decimals == 0 {
		options.Decimals = 2
	}
	if options.ThousandsSep == "" {
		options.ThousandsSep = ","
	}

	return &CurrencyCaster{
		symbol:       options.Symbol,
		decimals:     options.Decimals,
		thousandsSep: options.ThousandsSep,
		priority:     options.Priority,
	}, nil
}

func (c *CurrencyCaster) Type() CastType {
	return CastTypeCurrency
}

func (c *CurrencyCaster) Priority() int {
	return c.priority
}

func (c *CurrencyCaster) AutoDetect() bool {
	return false
}

func (c *CurrencyCaster) toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func (c *CurrencyCaster) CanCast(value interface{}, cctx *Context) bool {
	_, ok := c.toFloat(value)
	return ok
}

func (c *CurrencyCaster) Cast(value interface{}, cctx *Context) (interface{}, error) {
	f, ok := c.toFloat(value)
	if !ok {
		return nil, fmt.Errorf("cannot parse [%v] as number", value)
	}

	negative := f < 0
	if negative {
		f = -f
	}

	s := strconv.FormatFloat(f, 'f', c.decimals, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(c.thousandsSep)
		}
		b.WriteRune(digit)
	}

	out := c.symbol + b.String()
	if fracPart != "" {
		out += "." + fracPart
	}
	if negative {
		out = "-" + out
	}
	return out, nil
}
