package query

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// InQuery 集合成员查询
type InQuery struct {
	Field  string        `json:"field"`
	Values []interface{} `json:"values"`
}

func NewInQuery(field string, values ...interface{}) *InQuery {
	return &InQuery{Field: field, Values: values}
}

func (q *InQuery) Type() QueryType {
	return QueryTypeIn
}

func (q *InQuery) ToSQL() (string, []interface{}, error) {
	if len(q.Values) == 0 {
		return "", nil, errors.New("in query requires at least one value")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.Values)), ", ")
	return fmt.Sprintf("%s IN (%s)", q.Field, placeholders), q.Values, nil
}

func (q *InQuery) Match(row map[string]interface{}) bool {
	v, ok := Lookup(row, q.Field)
	if !ok {
		return false
	}
	for _, candidate := range q.Values {
		if Equal(v, candidate) {
			return true
		}
	}
	return false
}
