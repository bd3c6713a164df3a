package source

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/hatlonely/tablex/cache"
	"github.com/hatlonely/tablex/ref"
)

func sampleRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": 1, "name": "Alice", "age": 30, "status": "active"},
		{"id": 2, "name": "Bob", "age": 25, "status": "inactive"},
		{"id": 3, "name": "Carol", "age": 35, "status": "active"},
		{"id": 4, "name": "Dave", "age": 28, "status": "active"},
		{"id": 5, "name": "alina", "age": 22, "status": "pending"},
	}
}

func rowIDs(rows RowSet) []int {
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		switch v := row["id"].(type) {
		case int:
			ids = append(ids, v)
		case int64:
			ids = append(ids, int(v))
		case float64:
			ids = append(ids, int(v))
		}
	}
	return ids
}

func TestMemorySource(t *testing.T) {
	Convey("MemorySource", t, func() {
		ctx := context.Background()

		newSource := func() *MemorySource {
			s, err := NewMemorySourceWithOptions(&MemorySourceOptions{Rows: sampleRows()})
			So(err, ShouldBeNil)
			return s
		}

		Convey("无条件时返回全部行", func() {
			rows, err := newSource().FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 5)
		})

		Convey("等值过滤", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": "active"})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{1, 3, 4})
		})

		Convey("列表过滤按集合成员匹配", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": []string{"inactive", "pending"}})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{2, 5})
		})

		Convey("nil 和空字符串的过滤值被忽略", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": nil, "name": ""})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 5)
		})

		Convey("搜索大小写不敏感", func() {
			s := newSource()
			s.ApplySearch("ali", []string{"name"})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{1, 5})
		})

		Convey("空搜索词等价于未搜索", func() {
			s := newSource()
			s.ApplySearch("", []string{"name"})
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 5)
		})

		Convey("排序", func() {
			s := newSource()
			s.ApplySort("age", SortAsc)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{5, 2, 4, 1, 3})

			s = newSource()
			s.ApplySort("age", SortDesc)
			rows, err = s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{3, 1, 4, 2, 5})
		})

		Convey("缺失的排序列值在升序中排最前", func() {
			rows := sampleRows()
			delete(rows[2], "age")
			s, err := NewMemorySourceWithOptions(&MemorySourceOptions{Rows: rows})
			So(err, ShouldBeNil)
			s.ApplySort("age", SortAsc)

			got, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(got)[0], ShouldEqual, 3)
		})

		Convey("过滤加搜索加排序的组合", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": "active"})
			s.ApplySearch("a", []string{"name"})
			s.ApplySort("age", SortDesc)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{3, 1, 4})
		})

		Convey("Count 与 FetchAll 一致", func() {
			s := newSource()
			s.ApplyFilters(map[string]interface{}{"status": "active"})
			count, err := s.Count(ctx)
			So(err, ShouldBeNil)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, len(rows))
		})

		Convey("分页", func() {
			s := newSource()
			s.ApplySort("id", SortAsc)
			rows, info, err := s.FetchPage(ctx, 2, 2)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{3, 4})
			So(info.Total, ShouldEqual, 5)
			So(info.LastPage, ShouldEqual, 3)
			So(info.From, ShouldEqual, 3)
			So(info.To, ShouldEqual, 4)
		})

		Convey("页码越界退到最后一页", func() {
			s := newSource()
			s.ApplySort("id", SortAsc)
			rows, info, err := s.FetchPage(ctx, 99, 2)
			So(err, ShouldBeNil)
			So(info.Page, ShouldEqual, 3)
			So(rowIDs(rows), ShouldResemble, []int{5})
		})

		Convey("分页幂等", func() {
			s := newSource()
			s.ApplySort("id", SortAsc)
			rows1, info1, err := s.FetchPage(ctx, 1, 3)
			So(err, ShouldBeNil)
			rows2, info2, err := s.FetchPage(ctx, 1, 3)
			So(err, ShouldBeNil)
			So(rowIDs(rows1), ShouldResemble, rowIDs(rows2))
			So(info1.Total, ShouldEqual, info2.Total)
		})

		Convey("生成器惰性产生行集", func() {
			called := 0
			s, err := NewMemorySourceWithOptions(&MemorySourceOptions{
				Generator: func(ctx context.Context) ([]map[string]interface{}, error) {
					called++
					return sampleRows(), nil
				},
			})
			So(err, ShouldBeNil)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 5)
			So(called, ShouldEqual, 1)
		})

		Convey("行集和生成器都缺失时报错", func() {
			_, err := NewMemorySourceWithOptions(&MemorySourceOptions{})
			So(err, ShouldNotBeNil)
		})

		Convey("启用缓存后第二次抓取不再物化", func() {
			called := 0
			s, err := NewMemorySourceWithOptions(&MemorySourceOptions{
				Generator: func(ctx context.Context) ([]map[string]interface{}, error) {
					called++
					return sampleRows(), nil
				},
				Cache: &CachePolicy{Enabled: true, KeyPrefix: "memoize"},
			})
			So(err, ShouldBeNil)

			_, err = s.FetchAll(ctx)
			So(err, ShouldBeNil)
			_, err = s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(called, ShouldEqual, 1)
		})

		Convey("相同缓存策略的不同实例共享缓存", func() {
			called := 0
			generator := func(ctx context.Context) ([]map[string]interface{}, error) {
				called++
				return sampleRows(), nil
			}
			newCached := func() *MemorySource {
				s, err := NewMemorySourceWithOptions(&MemorySourceOptions{
					Generator: generator,
					Cache:     &CachePolicy{Enabled: true, KeyPrefix: "pooled"},
				})
				So(err, ShouldBeNil)
				return s
			}

			// 每次渲染都会重建数据源实例，缓存必须跨实例命中
			_, err := newCached().FetchAll(ctx)
			So(err, ShouldBeNil)
			_, err = newCached().FetchAll(ctx)
			So(err, ShouldBeNil)
			So(called, ShouldEqual, 1)
		})

		Convey("注入的网关可以在外部失效缓存", func() {
			gateway, err := cache.NewGatewayWithOptions(&cache.GatewayOptions{KeyPrefix: "injected"})
			So(err, ShouldBeNil)

			called := 0
			newCached := func() *MemorySource {
				s, err := NewMemorySourceWithOptions(&MemorySourceOptions{
					Generator: func(ctx context.Context) ([]map[string]interface{}, error) {
						called++
						return sampleRows(), nil
					},
					Cache: &CachePolicy{Enabled: true, Gateway: gateway, Tags: []string{"users"}},
				})
				So(err, ShouldBeNil)
				return s
			}

			_, err = newCached().FetchAll(ctx)
			So(err, ShouldBeNil)
			_, err = newCached().FetchAll(ctx)
			So(err, ShouldBeNil)
			So(called, ShouldEqual, 1)

			So(gateway.InvalidateTags(ctx, "users"), ShouldBeNil)
			_, err = newCached().FetchAll(ctx)
			So(err, ShouldBeNil)
			So(called, ShouldEqual, 2)
		})

		Convey("返回的行集是副本", func() {
			s, err := NewMemorySourceWithOptions(&MemorySourceOptions{
				Rows:  sampleRows(),
				Cache: &CachePolicy{Enabled: true},
			})
			So(err, ShouldBeNil)

			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			rows[0]["name"] = "mutated"

			again, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(again[0]["name"], ShouldNotEqual, "mutated")
		})
	})

	Convey("NewSourceWithOptions", t, func() {
		Convey("按类型配置构造数据源", func() {
			s, err := NewSourceWithOptions(&ref.TypeOptions{
				Namespace: "github.com/hatlonely/tablex/source",
				Type:      "MemorySource",
				Options:   &MemorySourceOptions{Rows: sampleRows()},
			})
			So(err, ShouldBeNil)
			So(s.Capabilities().Filter, ShouldBeTrue)
		})

		Convey("未注册的类型报错", func() {
			_, err := NewSourceWithOptions(&ref.TypeOptions{
				Namespace: "github.com/hatlonely/tablex/source",
				Type:      "UnknownSource",
			})
			So(err, ShouldNotBeNil)
		})
	})
}
