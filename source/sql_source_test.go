package source

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER, status TEXT)`)
	for _, row := range sampleRows() {
		db.Exec(`INSERT INTO users (id, name, age, status) VALUES (?, ?, ?, ?)`,
			row["id"], row["name"], row["age"], row["status"])
	}

	db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, product TEXT)`)
	db.Exec(`INSERT INTO orders (id, user_id, product) VALUES (1, 1, 'Phone'), (2, 2, 'Laptop'), (3, 4, 'phone case')`)

	return db
}

func TestSQLSource(t *testing.T) {
	Convey("SQLSource", t, func() {
		ctx := context.Background()
		db := newTestDB(t)

		newSource := func() *SQLSource {
			s, err := NewSQLSourceWithOptions(&SQLSourceOptions{
				Table: "users",
				DB:    db,
				Relations: map[string]*Relation{
					"orders": {Table: "orders", ForeignKey: "user_id", LocalKey: "id"},
				},
			})
			So(err, ShouldBeNil)
			return s
		}

		Convey("无条件时返回全部行", func() {
			rows, err := newSource().FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 5)
		})

		Convey("过滤下推为 WHERE 条件", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": "active"})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 3)
		})

		Convey("列表过滤下推为 IN 条件", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": []string{"inactive", "pending"}})
			count, err := s.Count(ctx)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 2)
		})

		Convey("搜索下推为 OR LIKE 条件", func() {
			s := newSource()
			s.ApplySearch("ALI", []string{"name"})
			s.ApplySort("id", SortAsc)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{1, 5})
		})

		Convey("关联列搜索改写为 EXISTS 子查询", func() {
			s := newSource()
			s.ApplySearch("phone", []string{"name", "orders.product"})
			s.ApplySort("id", SortAsc)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{1, 4})
		})

		Convey("缺少关联元信息的搜索列被跳过", func() {
			s := newSource()
			s.ApplySearch("phone", []string{"unknown.product", "name"})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 0)
		})

		Convey("排序下推为 ORDER BY", func() {
			s := newSource()
			s.ApplySort("age", SortDesc)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{3, 1, 4, 2, 5})
		})

		Convey("分页下推为 LIMIT OFFSET", func() {
			s := newSource()
			s.ApplySort("id", SortAsc)
			rows, info, err := s.FetchPage(ctx, 2, 2)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{3, 4})
			So(info.Total, ShouldEqual, 5)
			So(info.LastPage, ShouldEqual, 3)
		})

		Convey("页码越界退到最后一页", func() {
			s := newSource()
			s.ApplySort("id", SortAsc)
			rows, info, err := s.FetchPage(ctx, 99, 2)
			So(err, ShouldBeNil)
			So(info.Page, ShouldEqual, 3)
			So(rowIDs(rows), ShouldResemble, []int{5})
		})

		Convey("子查询作为数据来源", func() {
			s, err := NewSQLSourceWithOptions(&SQLSourceOptions{
				SubQuery: "SELECT id, name FROM users WHERE status = 'active'",
				DB:       db,
			})
			So(err, ShouldBeNil)
			count, err := s.Count(ctx)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 3)
		})

		Convey("表名和子查询都缺失时报错", func() {
			_, err := NewSQLSourceWithOptions(&SQLSourceOptions{DB: db})
			So(err, ShouldNotBeNil)
		})

		Convey("IsAvailable 探测连接", func() {
			So(newSource().IsAvailable(ctx), ShouldBeTrue)
		})
	})
}

// 同一逻辑查询在查询型后端和内存型后端上的执行结果必须观测等价
func TestSQLMemoryEquivalence(t *testing.T) {
	Convey("查询型与内存型后端等价", t, func() {
		ctx := context.Background()
		db := newTestDB(t)

		type shape struct {
			name    string
			filters map[string]interface{}
			search  string
			cols    []string
			sort    string
			dir     string
		}
		shapes := []shape{
			{name: "仅过滤", filters: map[string]interface{}{"status": "active"}, sort: "id", dir: SortAsc},
			{name: "列表过滤", filters: map[string]interface{}{"status": []string{"active", "pending"}}, sort: "id", dir: SortAsc},
			{name: "仅搜索", search: "ali", cols: []string{"name"}, sort: "id", dir: SortAsc},
			{name: "过滤加搜索加降序", filters: map[string]interface{}{"status": "active"}, search: "a", cols: []string{"name"}, sort: "age", dir: SortDesc},
			{name: "升序排序", sort: "age", dir: SortAsc},
		}

		for _, sh := range shapes {
			Convey(sh.name, func() {
				sqlSrc, err := NewSQLSourceWithOptions(&SQLSourceOptions{Table: "users", DB: db})
				So(err, ShouldBeNil)
				memSrc, err := NewMemorySourceWithOptions(&MemorySourceOptions{Rows: sampleRows()})
				So(err, ShouldBeNil)

				for _, s := range []Source{sqlSrc, memSrc} {
					if sh.filters != nil {
						s.ApplyFilters(sh.filters)
					}
					if sh.search != "" {
						s.ApplySearch(sh.search, sh.cols)
					}
					if sh.sort != "" {
						s.ApplySort(sh.sort, sh.dir)
					}
				}

				sqlRows, err := sqlSrc.FetchAll(ctx)
				So(err, ShouldBeNil)
				memRows, err := memSrc.FetchAll(ctx)
				So(err, ShouldBeNil)

				So(rowIDs(sqlRows), ShouldResemble, rowIDs(memRows))

				sqlCount, err := sqlSrc.Count(ctx)
				So(err, ShouldBeNil)
				memCount, err := memSrc.Count(ctx)
				So(err, ShouldBeNil)
				So(sqlCount, ShouldEqual, memCount)
			})
		}
	})
}
