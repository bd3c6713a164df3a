package logger

import (
	"context"
)

// Logger 统一的结构化日志接口。引擎和各数据源只依赖这个接口，
// 具体实现由配置决定。args 是交替出现的键值对
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// Context 变体从 ctx 中提取 trace 信息一并输出
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	// With 返回附加了固定字段的新日志器，WithGroup 为后续字段加组前缀
	With(args ...any) Logger
	WithGroup(name string) Logger
}
