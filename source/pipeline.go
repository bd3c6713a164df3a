package source

import (
	"sort"

	"github.com/hatlonely/tablex/query"
)

// filterQuery 把当前过滤状态编译为查询节点。
// 列表值按集合成员匹配，其余按精确相等匹配
func (st *queryState) filterQuery() *query.BoolQuery {
	q := query.NewBoolQuery()
	for column, value := range st.filters {
		switch v := value.(type) {
		case []interface{}:
			if len(v) > 0 {
				q.AddMust(query.NewInQuery(column, v...))
			}
		case []string:
			if len(v) > 0 {
				values := make([]interface{}, len(v))
				for i, s := range v {
					values[i] = s
				}
				q.AddMust(query.NewInQuery(column, values...))
			}
		default:
			q.AddMust(query.NewTermQuery(column, value))
		}
	}
	return q
}

// searchQuery 把搜索状态编译为跨列 OR 的子串查询，空搜索词返回 nil
func (st *queryState) searchQuery() *query.BoolQuery {
	if st.searchTerm == "" || len(st.searchCols) == 0 {
		return nil
	}
	q := query.NewBoolQuery()
	for _, column := range st.searchCols {
		q.AddShould(query.NewContainsQuery(column, st.searchTerm))
	}
	return q
}

// pipeline 在内存中执行固定的查询管道：过滤、搜索、排序。
// 顺序固定，这样分页元信息的总数总是反映过滤加搜索之后的行集。
// 返回的是新切片，调用方可以随意修改。
func (st *queryState) pipeline(rows RowSet) RowSet {
	filtered := make(RowSet, 0, len(rows))

	fq := st.filterQuery()
	sq := st.searchQuery()
	for _, row := range rows {
		if !fq.Match(row) {
			continue
		}
		if sq != nil && !sq.Match(row) {
			continue
		}
		filtered = append(filtered, row)
	}

	if st.sortColumn != "" {
		st.sortRows(filtered)
	}
	return filtered
}

// sortRows 稳定排序。缺失的排序列值在升序中排在所有存在值之前
func (st *queryState) sortRows(rows RowSet) {
	column := st.sortColumn
	sort.SliceStable(rows, func(i, j int) bool {
		vi, oki := query.Lookup(rows[i], column)
		vj, okj := query.Lookup(rows[j], column)
		if vi == nil {
			oki = false
		}
		if vj == nil {
			okj = false
		}

		var cmp int
		switch {
		case !oki && !okj:
			return false
		case !oki:
			cmp = -1
		case !okj:
			cmp = 1
		default:
			cmp = query.Compare(vi, vj)
		}
		if cmp == 0 {
			return false
		}
		if st.sortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// paginate 对已过滤排序的全集切片。越界的页码退到最近的合法页
func paginate(rows RowSet, page int, pageSize int) (RowSet, *PageInfo) {
	_, info := paginateInfo(len(rows), page, pageSize)
	if info.Total == 0 {
		return RowSet{}, info
	}
	return copyRows(rows[info.From-1 : info.To]), info
}

// paginateInfo 只根据总数计算分页元信息，用于分页已下推到后端的场景
func paginateInfo(total int, page int, pageSize int) (int, *PageInfo) {
	if pageSize < 1 {
		pageSize = 1
	}
	lastPage := (total + pageSize - 1) / pageSize
	if lastPage < 1 {
		lastPage = 1
	}
	if page < 1 {
		page = 1
	}
	if page > lastPage {
		page = lastPage
	}

	info := &PageInfo{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		LastPage: lastPage,
	}
	if total > 0 {
		from := (page-1)*pageSize + 1
		to := page * pageSize
		if to > total {
			to = total
		}
		info.From = from
		info.To = to
	}
	return page, info
}

// copyRows 返回行集的深一层副本，行本身也逐个复制
func copyRows(rows RowSet) RowSet {
	out := make(RowSet, len(rows))
	for i, row := range rows {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}
