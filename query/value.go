package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Lookup 按路径取行中的值。路径支持点号形式的嵌套访问，
// 例如 "author.name" 依次访问 row["author"]["name"]。
// 中间节点为 map 切片时返回第一个元素中的值。
func Lookup(row map[string]interface{}, path string) (interface{}, bool) {
	keys := strings.Split(path, ".")
	var cur interface{} = row
	for _, key := range keys {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			if len(node) == 0 {
				return nil, false
			}
			m, ok := node[0].(map[string]interface{})
			if !ok {
				return nil, false
			}
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// LookupAll 与 Lookup 类似，但路径中间节点为切片时展开所有元素。
// 用于关联集合的搜索匹配，任一元素命中即视为命中。
func LookupAll(row map[string]interface{}, path string) []interface{} {
	keys := strings.Split(path, ".")
	nodes := []interface{}{row}
	for _, key := range keys {
		var next []interface{}
		for _, cur := range nodes {
			switch node := cur.(type) {
			case map[string]interface{}:
				if v, ok := node[key]; ok {
					next = append(next, v)
				}
			case []interface{}:
				for _, item := range node {
					if m, ok := item.(map[string]interface{}); ok {
						if v, ok := m[key]; ok {
							next = append(next, v)
						}
					}
				}
			}
		}
		nodes = next
		if len(nodes) == 0 {
			break
		}
	}
	return nodes
}

// Equal 宽松的值相等判断。不同来源的行中数值类型不一致，
// JSON 解码产生 float64，数据库驱动产生 int64，这里先做数值归一再比较。
func Equal(a interface{}, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	return Stringify(a) == Stringify(b)
}

// Compare 比较两个值用于排序。数值按大小比较，其余按字符串比较。
// 返回负数、零、正数分别表示 a 小于、等于、大于 b。
func Compare(a interface{}, b interface{}) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(Stringify(a), Stringify(b))
}

// Stringify 将任意值转为字符串形式，用于搜索匹配和宽松比较
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}
