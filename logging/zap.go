// Package logging adapts zap to the Logger interface used across the
// runtime.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ragmesh/ragmesh/mcp"
)

// zapLogger wraps a sugared zap logger behind mcp.Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ mcp.Logger = (*zapLogger)(nil)

// New creates a production zap logger at the given level. Unknown levels
// fall back to info.
func New(level string) (mcp.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: logger.Sugar()}, nil
}

// NewDevelopment creates a human-readable console logger for local runs.
func NewDevelopment() (mcp.Logger, error) {
	logger, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: logger.Sugar()}, nil
}

func (l *zapLogger) Debug(msg string, fields ...any) { l.sugar.Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...any)  { l.sugar.Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...any)  { l.sugar.Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...any) { l.sugar.Errorw(msg, fields...) }

func (l *zapLogger) Bind(fields ...any) mcp.Logger {
	return &zapLogger{sugar: l.sugar.With(fields...)}
}

// Sync flushes buffered log entries if the logger supports it.
func Sync(logger mcp.Logger) {
	if zl, ok := logger.(*zapLogger); ok {
		_ = zl.sugar.Sync()
	}
}
