package logger

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewSLogWithOptions(t *testing.T) {
	Convey("NewSLogWithOptions", t, func() {
		Convey("默认配置", func() {
			l, err := NewSLogWithOptions(&SLogOptions{})
			So(err, ShouldBeNil)
			So(l, ShouldNotBeNil)
		})

		Convey("json 格式", func() {
			l, err := NewSLogWithOptions(&SLogOptions{
				Level:  "debug",
				Format: "json",
			})
			So(err, ShouldBeNil)
			So(l, ShouldNotBeNil)
			l.Debug("debug message", "key", "value")
		})

		Convey("非法级别返回错误", func() {
			_, err := NewSLogWithOptions(&SLogOptions{Level: "verbose"})
			So(err, ShouldNotBeNil)
		})

		Convey("nil options 返回错误", func() {
			_, err := NewSLogWithOptions(nil)
			So(err, ShouldNotBeNil)
		})

		Convey("自定义字段", func() {
			l, err := NewSLogWithOptions(&SLogOptions{
				Fields: map[string]any{"service": "tablex"},
			})
			So(err, ShouldBeNil)
			l.Info("with fields")
		})

		Convey("With 和 WithGroup 返回新的日志器", func() {
			l, err := NewSLogWithOptions(&SLogOptions{})
			So(err, ShouldBeNil)

			l2 := l.With("component", "test")
			So(l2, ShouldNotBeNil)
			So(l2, ShouldNotEqual, l)

			l3 := l.WithGroup("group")
			So(l3, ShouldNotBeNil)
		})
	})
}

func TestParseLevel(t *testing.T) {
	Convey("parseLevel", t, func() {
		Convey("支持的级别", func() {
			for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
				_, err := parseLevel(level)
				So(err, ShouldBeNil)
			}
		})

		Convey("未知级别返回错误", func() {
			_, err := parseLevel("trace")
			So(err, ShouldNotBeNil)
		})
	})
}
