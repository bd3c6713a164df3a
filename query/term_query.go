package query

import "fmt"

// TermQuery 精确匹配查询
type TermQuery struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

func NewTermQuery(field string, value interface{}) *TermQuery {
	return &TermQuery{Field: field, Value: value}
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToSQL() (string, []interface{}, error) {
	return fmt.Sprintf("%s = ?", q.Field), []interface{}{q.Value}, nil
}

func (q *TermQuery) Match(row map[string]interface{}) bool {
	v, ok := Lookup(row, q.Field)
	if !ok {
		return false
	}
	return Equal(v, q.Value)
}
