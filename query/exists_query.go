package query

import "fmt"

// ExistsQuery 字段存在性查询。空字符串视为不存在
type ExistsQuery struct {
	Field string `json:"field"`
}

func NewExistsQuery(field string) *ExistsQuery {
	return &ExistsQuery{Field: field}
}

func (q *ExistsQuery) Type() QueryType {
	return QueryTypeExists
}

func (q *ExistsQuery) ToSQL() (string, []interface{}, error) {
	return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", q.Field, q.Field), nil, nil
}

func (q *ExistsQuery) Match(row map[string]interface{}) bool {
	v, ok := Lookup(row, q.Field)
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	return true
}
