package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBoltDBStore(t *testing.T) {
	Convey("BoltDBStore", t, func() {
		dbPath := filepath.Join(t.TempDir(), "cache.db")

		store, err := NewBoltDBStoreWithOptions[string, CachedRows](&BoltDBStoreOptions{
			DBPath: dbPath,
		})
		So(err, ShouldBeNil)
		defer store.Close()

		ctx := context.Background()
		rows := CachedRows{
			Rows:  []map[string]any{{"id": int8(1)}},
			Total: 1,
		}

		Convey("基本读写删除", func() {
			err := store.Set(ctx, "page1", rows)
			So(err, ShouldBeNil)

			got, err := store.Get(ctx, "page1")
			So(err, ShouldBeNil)
			So(got.Total, ShouldEqual, 1)

			err = store.Del(ctx, "page1")
			So(err, ShouldBeNil)

			_, err = store.Get(ctx, "page1")
			So(err, ShouldEqual, ErrKeyNotFound)
		})

		Convey("条件设置 - IfNotExist", func() {
			err := store.Set(ctx, "page2", rows)
			So(err, ShouldBeNil)

			err = store.Set(ctx, "page2", CachedRows{Total: 9}, WithIfNotExist())
			So(err, ShouldEqual, ErrConditionFailed)
		})

		Convey("过期后返回 ErrKeyNotFound", func() {
			err := store.Set(ctx, "page3", rows, WithExpiration(10*time.Millisecond))
			So(err, ShouldBeNil)

			time.Sleep(20 * time.Millisecond)

			_, err = store.Get(ctx, "page3")
			So(err, ShouldEqual, ErrKeyNotFound)
		})

		Convey("批量读写删除", func() {
			keys := []string{"p1", "p2"}
			vals := []CachedRows{rows, {Total: 2}}

			errs, err := store.BatchSet(ctx, keys, vals)
			So(err, ShouldBeNil)
			So(errs, ShouldResemble, make([]error, 2))

			values, errs, err := store.BatchGet(ctx, []string{"p1", "p2", "missing"})
			So(err, ShouldBeNil)
			So(values[0].Total, ShouldEqual, 1)
			So(values[1].Total, ShouldEqual, 2)
			So(errs[2], ShouldEqual, ErrKeyNotFound)

			errs, err = store.BatchDel(ctx, keys)
			So(err, ShouldBeNil)
			So(errs, ShouldResemble, make([]error, 2))

			_, err = store.Get(ctx, "p1")
			So(err, ShouldEqual, ErrKeyNotFound)
		})

		Convey("DBPath 为空返回错误", func() {
			_, err := NewBoltDBStoreWithOptions[string, CachedRows](&BoltDBStoreOptions{})
			So(err, ShouldNotBeNil)
		})
	})
}
