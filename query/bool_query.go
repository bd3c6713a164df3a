package query

import (
	"strings"

	"github.com/pkg/errors"
)

// BoolQuery 布尔组合查询
type BoolQuery struct {
	Must    []Query `json:"must,omitempty"`
	Should  []Query `json:"should,omitempty"`
	MustNot []Query `json:"mustNot,omitempty"`
}

func NewBoolQuery() *BoolQuery {
	return &BoolQuery{}
}

func (q *BoolQuery) AddMust(queries ...Query) *BoolQuery {
	q.Must = append(q.Must, queries...)
	return q
}

func (q *BoolQuery) AddShould(queries ...Query) *BoolQuery {
	q.Should = append(q.Should, queries...)
	return q
}

func (q *BoolQuery) AddMustNot(queries ...Query) *BoolQuery {
	q.MustNot = append(q.MustNot, queries...)
	return q
}

func (q *BoolQuery) Empty() bool {
	return len(q.Must) == 0 && len(q.Should) == 0 && len(q.MustNot) == 0
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func (q *BoolQuery) ToSQL() (string, []interface{}, error) {
	var conditions []string
	var args []interface{}

	if len(q.Must) > 0 {
		parts := make([]string, 0, len(q.Must))
		for _, query := range q.Must {
			sql, queryArgs, err := query.ToSQL()
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, queryArgs...)
		}
		conditions = append(conditions, "("+strings.Join(parts, " AND ")+")")
	}

	if len(q.Should) > 0 {
		parts := make([]string, 0, len(q.Should))
		for _, query := range q.Should {
			sql, queryArgs, err := query.ToSQL()
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, queryArgs...)
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}

	if len(q.MustNot) > 0 {
		parts := make([]string, 0, len(q.MustNot))
		for _, query := range q.MustNot {
			sql, queryArgs, err := query.ToSQL()
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "NOT ("+sql+")")
			args = append(args, queryArgs...)
		}
		conditions = append(conditions, "("+strings.Join(parts, " AND ")+")")
	}

	if len(conditions) == 0 {
		return "", nil, errors.New("empty bool query")
	}

	return strings.Join(conditions, " AND "), args, nil
}

func (q *BoolQuery) Match(row map[string]interface{}) bool {
	for _, query := range q.Must {
		if !query.Match(row) {
			return false
		}
	}
	if len(q.Should) > 0 {
		matched := false
		for _, query := range q.Should {
			if query.Match(row) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, query := range q.MustNot {
		if query.Match(row) {
			return false
		}
	}
	return true
}
