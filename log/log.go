package log

import (
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

var defaultLogger logger.Logger

func init() {
	ref.MustRegisterT[*logger.SLog](logger.NewSLogWithOptions)

	// 创建默认的 SLog 实例，向终端输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slog
}

func Default() logger.Logger {
	return defaultLogger
}

// NewLoggerWithOptions 根据配置创建日志器，options 为 nil 时返回默认日志器。
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}

	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}

	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.New("object does not implement Logger interface")
	}

	return l, nil
}
