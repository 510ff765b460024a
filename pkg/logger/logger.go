package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *zap.Logger

// Options 日志参数
type Options struct {
	Level      string // debug | info | warn | error
	File       string // 为空时只输出到控制台
	MaxSize    int    // 单个文件最大尺寸, MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// InitLogger 初始化 zap 日志记录器并替换全局 logger
func InitLogger(opts Options) *zap.Logger {
	core := zapcore.NewCore(getEncoder(), getLogWriter(opts), parseLevel(opts.Level))

	Logger = zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(Logger)
	return Logger
}

func parseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// getEncoder 控制台格式，ISO8601 时间，大写带颜色的级别
func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// getLogWriter 同时写控制台与滚动日志文件
func getLogWriter(opts Options) zapcore.WriteSyncer {
	if opts.File == "" {
		return zapcore.AddSync(os.Stdout)
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
	return zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(lumberJackLogger))
}
