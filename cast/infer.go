package cast

import "strings"

// InferRule 一条列名启发式规则。规则表是有序的数据结构，
// 识别顺序本身可以独立于转换执行单元测试
type InferRule struct {
	Name  string
	Type  CastType
	Match func(column string, value interface{}) bool
}

// 已知的日期列名，不带后缀也按日期识别
var dateKeys = map[string]struct{}{
	"date":       {},
	"time":       {},
	"datetime":   {},
	"timestamp":  {},
	"birthday":   {},
	"created_at": {},
	"updated_at": {},
	"deleted_at": {},
}

var currencyKeys = []string{"price", "cost", "amount", "total", "fee", "salary", "balance"}

var statusKeys = map[string]struct{}{
	"status":    {},
	"state":     {},
	"condition": {},
}

var boolPrefixes = []string{"is_", "has_", "can_", "should_", "will_"}

// DefaultInferRules 默认的启发式规则表，按声明顺序求值，先命中先得
func DefaultInferRules() []InferRule {
	return []InferRule{
		{
			Name: "dateSuffix",
			Type: CastTypeDate,
			Match: func(column string, value interface{}) bool {
				return strings.HasSuffix(column, "_at") ||
					strings.HasSuffix(column, "_date") ||
					strings.HasSuffix(column, "_time")
			},
		},
		{
			Name: "dateKey",
			Type: CastTypeDate,
			Match: func(column string, value interface{}) bool {
				_, ok := dateKeys[column]
				return ok
			},
		},
		{
			Name: "currencyKey",
			Type: CastTypeCurrency,
			Match: func(column string, value interface{}) bool {
				if !isNumeric(value) {
					return false
				}
				for _, key := range currencyKeys {
					if column == key || strings.HasSuffix(column, "_"+key) {
						return true
					}
				}
				return false
			},
		},
		{
			Name: "statusKey",
			Type: CastTypeStatus,
			Match: func(column string, value interface{}) bool {
				_, ok := statusKeys[column]
				return ok
			},
		},
		{
			Name: "boolPrefix",
			Type: CastTypeBoolean,
			Match: func(column string, value interface{}) bool {
				for _, prefix := range boolPrefixes {
					if strings.HasPrefix(column, prefix) {
						return true
					}
				}
				return false
			},
		},
	}
}

// Infer 按规则表顺序识别列的语义类型，无法识别时返回空
func Infer(rules []InferRule, column string, value interface{}) CastType {
	column = strings.ToLower(column)
	for _, rule := range rules {
		if rule.Match(column, value) {
			return rule.Type
		}
	}
	return ""
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
