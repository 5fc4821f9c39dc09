package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/loracam/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	once   sync.Once
	mu     sync.RWMutex

	// 模块日志器，按模块名单独设置级别
	moduleLoggers map[string]*zap.Logger

	// 全局级别，支持配置热更新
	atomicLevel = zap.NewAtomicLevel()
)

// Init 初始化日志系统
//
// 输出由 cfg.Output 决定：stdout、file 或 both。文件输出按大小轮转，
// 并把 error 及以上级别另写一份到 error.log。
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		atomicLevel.SetLevel(parseLevel(cfg.Level))

		encoder := newEncoder(cfg.Format)

		var sinks []zapcore.WriteSyncer
		var errorSink zapcore.WriteSyncer
		if cfg.Output == "stdout" || cfg.Output == "both" {
			sinks = append(sinks, zapcore.AddSync(os.Stdout))
		}
		if cfg.Output == "file" || cfg.Output == "both" {
			if err = os.MkdirAll(cfg.File.Path, 0755); err != nil {
				return
			}
			sinks = append(sinks, zapcore.AddSync(rotating(cfg.File, cfg.File.Filename)))
			errorSink = zapcore.AddSync(rotating(cfg.File, "error.log"))
		}
		if len(sinks) == 0 {
			sinks = append(sinks, zapcore.AddSync(os.Stdout))
		}
		out := zapcore.NewMultiWriteSyncer(sinks...)

		// build 以指定级别组装核心，模块日志器与主日志器共用输出
		build := func(level zapcore.LevelEnabler) *zap.Logger {
			cores := []zapcore.Core{zapcore.NewCore(encoder, out, level)}
			if errorSink != nil {
				cores = append(cores, zapcore.NewCore(encoder, errorSink, zapcore.ErrorLevel))
			}
			return zap.New(zapcore.NewTee(cores...),
				zap.AddCaller(),
				zap.AddStacktrace(zapcore.ErrorLevel))
		}

		mu.Lock()
		defer mu.Unlock()

		logger = build(atomicLevel)
		moduleLoggers = make(map[string]*zap.Logger, len(cfg.Modules))
		for module, levelStr := range cfg.Modules {
			moduleLoggers[module] = build(parseLevel(levelStr)).Named(module)
		}
	})

	return err
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func rotating(cfg config.LogFileConfig, filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, filename),
		MaxSize:    cfg.MaxSize, // MB
		MaxAge:     cfg.MaxAge,  // days
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取日志器，未初始化时返回生产环境默认配置
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		l, _ = zap.NewProduction()
	}
	return l
}

// WithModule 获取模块日志器，未单独配置级别的模块沿用全局日志器
func WithModule(module string) *zap.Logger {
	mu.RLock()
	l, ok := moduleLoggers[module]
	mu.RUnlock()
	if ok {
		return l
	}
	return GetLogger().Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

func skip() *zap.Logger {
	return GetLogger().WithOptions(zap.AddCallerSkip(1))
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) {
	skip().Debug(msg, fields...)
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	skip().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	skip().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	skip().Error(msg, fields...)
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	WithModule("api").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogPanic 记录panic日志
func LogPanic(recovered interface{}, stack []byte) {
	GetLogger().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogATExchange 记录一次AT命令往返（命令与模组返回的行）
func LogATExchange(cmd string, lines []string, err error) {
	l := WithModule("at")
	if err != nil {
		l.Error("at_exchange_failed",
			zap.String("command", cmd),
			zap.Error(err),
		)
		return
	}
	l.Debug("at_exchange",
		zap.String("command", cmd),
		zap.Strings("lines", lines),
	)
}

// LogLinkEvent 记录LoRaWAN链路事件（入网/上行/下行）
func LogLinkEvent(direction, status string, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("direction", direction),
		zap.String("status", status),
	}, fields...)

	l := WithModule("lora")
	switch status {
	case "failed", "timeout", "rejected", "malformed", "decode_error":
		l.Warn("link_event", fields...)
	default:
		l.Info("link_event", fields...)
	}
}

// LogDatabaseOperation 记录数据库操作
func LogDatabaseOperation(operation string, table string, duration time.Duration, err error) {
	l := WithModule("database")
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("duration", duration),
	}

	if err != nil {
		l.Error("database_operation_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("database_operation", fields...)
}

// SetLevel 动态设置全局日志级别，模块级别不受影响
func SetLevel(levelStr string) {
	atomicLevel.SetLevel(parseLevel(levelStr))

	if cfg := config.Get(); cfg != nil {
		cfg.Log.Level = levelStr
	}
}
