package table

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ConfigurationError 构造期配置错误。致命，引擎不会建成
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "table configuration error: " + e.Message
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// FetchError 数据抓取失败。对外只暴露通用提示和诊断号，
// 具体原因通过 Unwrap 留给日志和排障
type FetchError struct {
	// 诊断号，随错误日志输出，用于关联用户反馈和日志
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to load table data (diagnostic %s)", e.ID)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(err error) *FetchError {
	return &FetchError{ID: diagnosticID(), Err: err}
}

func diagnosticID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
