package query

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ContainsQuery 大小写不敏感的子串匹配查询，用于全局搜索。
// Field 支持点号路径，如 "author.name" 表示搜索关联实体的列，
// 此时 SQL 形态需要关联元信息，由数据源负责改写为 EXISTS 子查询，
// 这里直接返回错误提示调用方。
type ContainsQuery struct {
	Field string `json:"field"`
	Term  string `json:"term"`
}

func NewContainsQuery(field string, term string) *ContainsQuery {
	return &ContainsQuery{Field: field, Term: term}
}

func (q *ContainsQuery) Type() QueryType {
	return QueryTypeContains
}

func (q *ContainsQuery) ToSQL() (string, []interface{}, error) {
	if strings.Contains(q.Field, ".") {
		return "", nil, errors.Errorf("relation search [%s] requires relation metadata", q.Field)
	}
	return fmt.Sprintf("LOWER(%s) LIKE ?", q.Field), []interface{}{"%" + strings.ToLower(q.Term) + "%"}, nil
}

func (q *ContainsQuery) Match(row map[string]interface{}) bool {
	term := strings.ToLower(q.Term)
	for _, v := range LookupAll(row, q.Field) {
		if v == nil {
			continue
		}
		if strings.Contains(strings.ToLower(Stringify(v)), term) {
			return true
		}
	}
	return false
}
