// Package logging provides the structured Logger interface used across the
// correlation engine, backed by go.uber.org/zap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal logging surface every engine component depends on.
// Keeping it narrow (rather than importing *zap.Logger everywhere) lets
// callers supply their own implementation in tests.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

// New builds a zap-backed Logger at the given level ("debug", "info",
// "warn", "error"; anything else defaults to info).
func New(level string) Logger {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	zl, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &zapLogger{sugar: zl.Sugar()}
}

// Nop returns a Logger that discards everything; used as the default when a
// component is constructed with a nil Logger.
func Nop() Logger { return &zapLogger{sugar: zap.NewNop().Sugar()} }

// OrNop returns l, or Nop() if l is nil — every C1-C10 constructor routes
// its Logger argument through this so nil is always safe to pass.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (z *zapLogger) Info(msg string, fields ...interface{})  { z.sugar.Infow(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...interface{})  { z.sugar.Warnw(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...interface{}) { z.sugar.Errorw(msg, fields...) }
func (z *zapLogger) Debug(msg string, fields ...interface{}) { z.sugar.Debugw(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...interface{}) { z.sugar.Fatalw(msg, fields...) }
