package ref

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeSourceOptions struct {
	Endpoint string
	Timeout  int
}

type fakeSource struct {
	endpoint string
	timeout  int
}

func newFakeSource(options *fakeSourceOptions) (*fakeSource, error) {
	return &fakeSource{endpoint: options.Endpoint, timeout: options.Timeout}, nil
}

type noOptionSource struct{}

func newNoOptionSource() *noOptionSource {
	return &noOptionSource{}
}

func TestRegister(t *testing.T) {
	Convey("Register", t, func() {
		Convey("正常注册构造函数", func() {
			err := Register("test/ref", "FakeSource", newFakeSource)
			So(err, ShouldBeNil)
		})

		Convey("重复注册相同函数是幂等的", func() {
			err := Register("test/ref", "FakeSource", newFakeSource)
			So(err, ShouldBeNil)
			err = Register("test/ref", "FakeSource", newFakeSource)
			So(err, ShouldBeNil)
		})

		Convey("注册不同函数到同一个 key 返回错误", func() {
			err := Register("test/ref", "ConflictSource", newFakeSource)
			So(err, ShouldBeNil)
			err = Register("test/ref", "ConflictSource", newNoOptionSource)
			So(err, ShouldNotBeNil)
		})

		Convey("非函数参数返回错误", func() {
			err := Register("test/ref", "NotAFunc", 42)
			So(err, ShouldNotBeNil)
		})

		Convey("参数数量不合法返回错误", func() {
			err := Register("test/ref", "TooManyArgs", func(a, b int) *fakeSource { return nil })
			So(err, ShouldNotBeNil)
		})

		Convey("第二个返回值不是 error 返回错误", func() {
			err := Register("test/ref", "BadReturn", func() (*fakeSource, int) { return nil, 0 })
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNew(t *testing.T) {
	Convey("New", t, func() {
		MustRegister("test/ref/new", "FakeSource", newFakeSource)
		MustRegister("test/ref/new", "NoOptionSource", newNoOptionSource)

		Convey("带 options 的构造", func() {
			obj, err := New("test/ref/new", "FakeSource", &fakeSourceOptions{
				Endpoint: "http://localhost:8080",
				Timeout:  3,
			})
			So(err, ShouldBeNil)

			source, ok := obj.(*fakeSource)
			So(ok, ShouldBeTrue)
			So(source.endpoint, ShouldEqual, "http://localhost:8080")
			So(source.timeout, ShouldEqual, 3)
		})

		Convey("不带 options 的构造", func() {
			obj, err := New("test/ref/new", "NoOptionSource", nil)
			So(err, ShouldBeNil)
			So(obj, ShouldNotBeNil)
		})

		Convey("需要 options 但传入 nil 返回错误", func() {
			_, err := New("test/ref/new", "FakeSource", nil)
			So(err, ShouldNotBeNil)
		})

		Convey("未注册的类型返回错误", func() {
			_, err := New("test/ref/new", "Unknown", nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "constructor not found")
		})
	})
}

func TestNewWithOptions(t *testing.T) {
	Convey("NewWithOptions", t, func() {
		MustRegister("test/ref/opts", "FakeSource", newFakeSource)

		Convey("正常构造", func() {
			obj, err := NewWithOptions(&TypeOptions{
				Namespace: "test/ref/opts",
				Type:      "FakeSource",
				Options:   &fakeSourceOptions{Endpoint: "http://example.com"},
			})
			So(err, ShouldBeNil)
			So(obj.(*fakeSource).endpoint, ShouldEqual, "http://example.com")
		})

		Convey("nil options 返回错误", func() {
			_, err := NewWithOptions(nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRegisterTAndNewT(t *testing.T) {
	Convey("RegisterT / NewT", t, func() {
		Convey("以类型推导 namespace 和 type", func() {
			err := RegisterT[*fakeSource](newFakeSource)
			So(err, ShouldBeNil)

			source, err := NewT[*fakeSource](&fakeSourceOptions{Endpoint: "http://t"})
			So(err, ShouldBeNil)
			So(source.endpoint, ShouldEqual, "http://t")
		})
	})
}
