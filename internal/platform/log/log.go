// Package log 提供节点统一的日志接口，基于zap构建，支持按组件命名的子logger
// 和可选的文件轮转输出。实现方式沿用基础设施层"接口+zap实现"的惯用分层。
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 是贯穿整个节点代码库的日志接口。
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	// With 返回一个携带额外结构化字段的子logger，常用于挂载 component/peer 等上下文。
	With(key string, value interface{}) Logger
}

// Options 控制日志输出的行为。
type Options struct {
	Level      string // debug|info|warn|error
	FilePath   string // 为空则不写文件；是否输出到stderr由Console决定
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

// DefaultOptions 返回适用于开发环境的默认配置。
func DefaultOptions() Options {
	return Options{Level: "info", Console: true, MaxSizeMB: 64, MaxBackups: 3, MaxAgeDays: 14}
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New 按给定选项构建一个Logger。
func New(opts Options) (Logger, error) {
	level := parseLevel(opts.Level)

	var cores []zapcore.Core
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Console {
		consoleEnc := zapcore.NewConsoleEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stderr), level))
	}

	if opts.FilePath != "" {
		jsonEnc := zapcore.NewJSONEncoder(encCfg)
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    nonZero(opts.MaxSizeMB, 64),
			MaxBackups: nonZero(opts.MaxBackups, 3),
			MaxAge:     nonZero(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEnc, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &zapLogger{sugar: zl.Sugar()}, nil
}

// Nop 返回一个丢弃所有日志的Logger，用于测试或未配置日志时的兜底。
func Nop() Logger { return &zapLogger{sugar: zap.NewNop().Sugar()} }

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Debug(msg string)                          { l.sugar.Debug(msg) }
func (l *zapLogger) Info(msg string)                           { l.sugar.Info(msg) }
func (l *zapLogger) Warn(msg string)                            { l.sugar.Warn(msg) }
func (l *zapLogger) Error(msg string)                           { l.sugar.Error(msg) }

func (l *zapLogger) With(key string, value interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(key, value)}
}
