package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled, printf-style logging for pipeline components.
// It is a thin wrapper over zap's sugared logger so components can log
// with the usual "[Component] message" convention without carrying a
// logger instance around.
type Logger struct {
	sugar  *zap.SugaredLogger
	prefix string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger from environment variables:
//   - LOG_LEVEL: DEBUG, INFO, WARN or ERROR (default: INFO)
//   - LOG_JSON: emit JSON instead of console output (default: false)
func Init() {
	once.Do(func() {
		defaultLogger = New(levelFromEnv(), os.Getenv("LOG_JSON") == "true")
	})
}

func levelFromEnv() zapcore.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a new Logger instance
func New(level zapcore.Level, jsonOutput bool) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	z := zap.New(core, zap.AddCallerSkip(2))
	return &Logger{sugar: z.Sugar()}
}

// WithPrefix returns a logger that prepends "[prefix]" to every message
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{sugar: l.sugar, prefix: prefix}
}

func (l *Logger) format(msg string) string {
	if l.prefix == "" {
		return msg
	}
	return "[" + l.prefix + "] " + msg
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(l.format(format), args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(l.format(format), args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(l.format(format), args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(l.format(format), args...)
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// GetDefault returns the default logger, initializing it if needed
func GetDefault() *Logger {
	if defaultLogger == nil {
		Init()
	}
	return defaultLogger
}

// Global convenience functions that use the default logger

func Debug(format string, args ...interface{}) {
	GetDefault().sugar.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	GetDefault().sugar.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetDefault().sugar.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	GetDefault().sugar.Errorf(format, args...)
}

// WithPrefix creates a prefixed logger from the default logger
func WithPrefix(prefix string) *Logger {
	return GetDefault().WithPrefix(prefix)
}
