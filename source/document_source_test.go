package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeTempFile(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDocumentSource(t *testing.T) {
	Convey("DocumentSource", t, func() {
		ctx := context.Background()

		Convey("顶层数组文档", func() {
			path := writeTempFile(t, "rows.json", `[
				{"id": 1, "name": "Alice", "status": "active"},
				{"id": 2, "name": "Bob", "status": "inactive"}
			]`)

			s, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{Path: path})
			So(err, ShouldBeNil)

			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(s.IsAvailable(ctx), ShouldBeTrue)
		})

		Convey("dataKey 定位嵌套行集", func() {
			path := writeTempFile(t, "nested.json", `{"payload": {"rows": [{"id": 1}]}}`)

			s, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{
				Path:    path,
				DataKey: "payload.rows",
			})
			So(err, ShouldBeNil)

			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
		})

		Convey("文档上执行过滤和排序", func() {
			path := writeTempFile(t, "rows.json", `[
				{"id": 1, "age": 30, "status": "active"},
				{"id": 2, "age": 25, "status": "active"},
				{"id": 3, "age": 28, "status": "inactive"}
			]`)

			s, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{Path: path})
			So(err, ShouldBeNil)

			s.ApplyFilters(map[string]interface{}{"status": "active"})
			s.ApplySort("age", SortAsc)
			rows, err := s.FetchAll(ctx)
			So(err, ShouldBeNil)
			So(rowIDs(rows), ShouldResemble, []int{2, 1})
		})

		Convey("文档非法时整体判定为抓取失败", func() {
			path := writeTempFile(t, "bad.json", `{"broken":`)

			s, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{Path: path})
			So(err, ShouldBeNil)

			_, err = s.FetchAll(ctx)
			So(err, ShouldNotBeNil)
		})

		Convey("dataKey 不存在时报错", func() {
			path := writeTempFile(t, "rows.json", `{"data": []}`)

			s, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{
				Path:    path,
				DataKey: "missing.key",
			})
			So(err, ShouldBeNil)

			_, err = s.FetchAll(ctx)
			So(err, ShouldNotBeNil)
		})

		Convey("文件不存在时不可用", func() {
			s, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{Path: "/nonexistent/rows.json"})
			So(err, ShouldBeNil)
			So(s.IsAvailable(ctx), ShouldBeFalse)

			_, err = s.FetchAll(ctx)
			So(err, ShouldNotBeNil)
		})

		Convey("path 缺失时报错", func() {
			_, err := NewDocumentSourceWithOptions(&DocumentSourceOptions{})
			So(err, ShouldNotBeNil)
		})
	})
}
