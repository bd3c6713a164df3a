package action

import (
	"sort"
	"strings"

	"github.com/hatlonely/tablex/query"
)

// Kind 动作种类，封闭集合，每个种类对应一个具体类型
type Kind string

const (
	KindNavigation   Kind = "navigation"
	KindExternalLink Kind = "externalLink"
	KindCallback     Kind = "callback"
	KindModal        Kind = "modal"
	KindBulk         Kind = "bulk"
)

// Context 可见性、可用性判定和执行共用的求值上下文
type Context struct {
	// 当前请求者
	Actor interface{}

	// 当前行。批量动作和表头动作没有行
	Row map[string]interface{}

	// 表级和调用级上下文合并后的附加信息
	Extra map[string]interface{}
}

// Confirm 执行前的确认信息
type Confirm struct {
	Title   string `cfg:"title"`
	Message string `cfg:"message"`
}

// Result 动作执行结果
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Meta 各种类动作共有的元数据。
// 判定顺序固定：先可见性，可见的才判定可用性
type Meta struct {
	// 键，在所属表内唯一
	Key string `cfg:"key"`

	// 展示文案
	Label string `cfg:"label"`

	// 图标标识
	Icon string `cfg:"icon"`

	// 悬浮提示
	Tooltip string `cfg:"tooltip"`

	// 分组标签，为空时不分组
	Group string `cfg:"group"`

	// 组内排序值，小的在前，相同时按声明顺序
	Order int `cfg:"order"`

	// 确认信息，为 nil 时不需要确认
	Confirm *Confirm `cfg:"confirm"`

	// 权限能力名覆盖，为空时以动作键作为能力名
	Ability string `cfg:"ability"`

	// 可见性判定，为 nil 时始终可见
	Visible func(actx *Context) bool `cfg:"-"`

	// 可用性判定，只对可见的动作求值，为 nil 时始终可用
	Enabled func(actx *Context) bool `cfg:"-"`
}

// Descriptor 返回元数据自身，内嵌 Meta 的动作类型由此获得访问器
func (m *Meta) Descriptor() *Meta {
	return m
}

// Action 动作统一接口。Descriptor 由内嵌的 Meta 提供
type Action interface {
	Kind() Kind
	Descriptor() *Meta
}

// IsVisible 判定动作是否可见，判定过程抛出的 panic 按不可见处理
func IsVisible(a Action, actx *Context) (visible bool) {
	defer func() {
		if r := recover(); r != nil {
			visible = false
		}
	}()
	if a.Descriptor().Visible == nil {
		return true
	}
	return a.Descriptor().Visible(actx)
}

// IsEnabled 判定动作是否可用，判定过程抛出的 panic 按不可用处理
func IsEnabled(a Action, actx *Context) (enabled bool) {
	defer func() {
		if r := recover(); r != nil {
			enabled = false
		}
	}()
	if a.Descriptor().Enabled == nil {
		return true
	}
	return a.Descriptor().Enabled(actx)
}

// Sort 按分组和排序值整理动作列表。分组按首次出现的顺序排列，
// 组内按排序值从小到大，相同时保持声明顺序。返回新切片
func Sort(actions []Action) []Action {
	out := make([]Action, len(actions))
	copy(out, actions)

	groupRank := make(map[string]int)
	for i, a := range actions {
		group := a.Descriptor().Group
		if _, ok := groupRank[group]; !ok {
			groupRank[group] = i
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := groupRank[out[i].Descriptor().Group], groupRank[out[j].Descriptor().Group]
		if gi != gj {
			return gi < gj
		}
		return out[i].Descriptor().Order < out[j].Descriptor().Order
	})
	return out
}

// expandTemplate 把模板中的 {field} 占位符替换为行中对应字段的值
func expandTemplate(template string, row map[string]interface{}) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:start])
		field := rest[start+1 : start+end]
		if v, ok := row[field]; ok {
			b.WriteString(query.Stringify(v))
		}
		rest = rest[start+end+1:]
	}
}
