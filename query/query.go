package query

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool     QueryType = "bool"
	QueryTypeTerm     QueryType = "term"
	QueryTypeIn       QueryType = "in"
	QueryTypeContains QueryType = "contains"
	QueryTypeExists   QueryType = "exists"
)

// Query 查询节点接口。每个节点同时提供两种执行形态：
// ToSQL 供查询型数据源下推到存储引擎，Match 供内存型数据源逐行求值。
// 两种形态对同一数据集必须产生相同的行集合（见 source 包的等价性测试）。
type Query interface {
	Type() QueryType
	// 后端适配器接口
	ToSQL() (string, []interface{}, error)
	Match(row map[string]interface{}) bool
}
