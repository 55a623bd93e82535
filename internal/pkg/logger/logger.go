// Package logger 提供进程统一的 slog 初始化。
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建默认的文本日志记录器，输出到标准输出。
//
// level 取值 debug / info / warn / error，无法识别时回退到 info。
func NewDefault(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	return slog.New(handler)
}
