package perm

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ResourceRef 权限检查的客体引用。显式区分类型引用和实例引用，
// 解析链不需要做运行时类型判断
type ResourceRef struct {
	name string
	id   string
}

// TypeRef 指向一类资源
func TypeRef(name string) ResourceRef {
	return ResourceRef{name: name}
}

// InstanceRef 指向某类资源的一个实例
func InstanceRef(name string, id string) ResourceRef {
	return ResourceRef{name: name, id: id}
}

func (r ResourceRef) Name() string {
	return r.name
}

func (r ResourceRef) ID() string {
	return r.id
}

func (r ResourceRef) IsInstance() bool {
	return r.id != ""
}

// Identity 资源的稳定标识，用作请求内决策缓存的键
func (r ResourceRef) Identity() string {
	if r.id == "" {
		return r.name
	}
	return r.name + ":" + r.id
}

// Slug 资源名加能力构成的权限标识，资源名转复数蛇形
func (r ResourceRef) Slug(ability string) string {
	return inflection.Plural(toSnake(r.name)) + "." + ability
}

func toSnake(name string) string {
	var b strings.Builder
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ColumnAbility 表的列可见性对应的能力名
func ColumnAbility(table string) string {
	return "view_" + table + "_columns"
}

// FilterAbility 过滤器对应的能力名
func FilterAbility(filterKey string) string {
	return "use_" + filterKey + "_filter"
}
