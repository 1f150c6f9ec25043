package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"log/slog"
)

// Logger 是注入到各组件的日志句柄，构造一次、随组件生命周期复用。
type Logger struct {
	sl       *slog.Logger
	levelVar *slog.LevelVar
}

// New 基于 slog TextHandler 构造日志句柄。
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	return &Logger{sl: slog.New(handler), levelVar: lv}
}

// Discard 返回丢弃全部输出的句柄，测试用。
func Discard() *Logger {
	return New(io.Discard, "error")
}

// SetLevel 动态调整日志级别。
func (l *Logger) SetLevel(level string) {
	l.levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Debugf(format string, v ...any) {
	l.sl.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Infof(format string, v ...any) {
	l.sl.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warnf(format string, v ...any) {
	l.sl.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Errorf(format string, v ...any) {
	l.sl.Error(fmt.Sprintf(format, v...))
}
