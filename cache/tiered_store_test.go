package cache

import (
	"context"
	"testing"
	"time"

	"github.com/hatlonely/tablex/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func mapStoreTypeOptions() *ref.TypeOptions {
	return &ref.TypeOptions{
		Namespace: "github.com/hatlonely/tablex/cache",
		Type:      "MapStore[string,string]",
	}
}

func TestTieredStore(t *testing.T) {
	Convey("TieredStore", t, func() {
		ctx := context.Background()

		Convey("writeThrough 写入所有层", func() {
			l1 := NewMapStoreWithOptions[string, string](nil)
			l2 := NewMapStoreWithOptions[string, string](nil)
			ts := &TieredStore[string, string]{
				tiers:       []Store[string, string]{l1, l2},
				writePolicy: "writeThrough",
				promote:     true,
			}
			defer ts.Close()

			err := ts.Set(ctx, "key", "value")
			So(err, ShouldBeNil)

			v1, err := l1.Get(ctx, "key")
			So(err, ShouldBeNil)
			So(v1, ShouldEqual, "value")

			v2, err := l2.Get(ctx, "key")
			So(err, ShouldBeNil)
			So(v2, ShouldEqual, "value")
		})

		Convey("下层命中时返回数据并提升到上层", func() {
			l1 := NewMapStoreWithOptions[string, string](nil)
			l2 := NewMapStoreWithOptions[string, string](nil)
			ts := &TieredStore[string, string]{
				tiers:       []Store[string, string]{l1, l2},
				writePolicy: "writeThrough",
				promote:     true,
			}
			defer ts.Close()

			So(l2.Set(ctx, "key", "value"), ShouldBeNil)

			got, err := ts.Get(ctx, "key")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "value")

			// 提升是异步的，等待其完成
			time.Sleep(50 * time.Millisecond)
			v1, err := l1.Get(ctx, "key")
			So(err, ShouldBeNil)
			So(v1, ShouldEqual, "value")
		})

		Convey("所有层未命中返回 ErrKeyNotFound", func() {
			l1 := NewMapStoreWithOptions[string, string](nil)
			ts := &TieredStore[string, string]{
				tiers:       []Store[string, string]{l1},
				writePolicy: "writeThrough",
			}
			defer ts.Close()

			_, err := ts.Get(ctx, "missing")
			So(err, ShouldEqual, ErrKeyNotFound)
		})

		Convey("Del 作用于所有层", func() {
			l1 := NewMapStoreWithOptions[string, string](nil)
			l2 := NewMapStoreWithOptions[string, string](nil)
			ts := &TieredStore[string, string]{
				tiers:       []Store[string, string]{l1, l2},
				writePolicy: "writeThrough",
			}
			defer ts.Close()

			So(ts.Set(ctx, "key", "value"), ShouldBeNil)
			So(ts.Del(ctx, "key"), ShouldBeNil)

			_, err := l1.Get(ctx, "key")
			So(err, ShouldEqual, ErrKeyNotFound)
			_, err = l2.Get(ctx, "key")
			So(err, ShouldEqual, ErrKeyNotFound)
		})
	})

	Convey("NewTieredStoreWithOptions", t, func() {
		Convey("从配置构造多级存储", func() {
			ts, err := NewTieredStoreWithOptions[string, string](&TieredStoreOptions{
				Tiers: []*ref.TypeOptions{mapStoreTypeOptions(), mapStoreTypeOptions()},
			})
			So(err, ShouldBeNil)
			So(len(ts.tiers), ShouldEqual, 2)
			defer ts.Close()
		})

		Convey("空的层配置返回错误", func() {
			_, err := NewTieredStoreWithOptions[string, string](&TieredStoreOptions{})
			So(err, ShouldNotBeNil)
		})

		Convey("非法写入策略返回错误", func() {
			_, err := NewTieredStoreWithOptions[string, string](&TieredStoreOptions{
				Tiers:       []*ref.TypeOptions{mapStoreTypeOptions()},
				WritePolicy: "writeAround",
			})
			So(err, ShouldNotBeNil)
		})
	})
}
