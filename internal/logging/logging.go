// Package logging wraps zap with the small surface the rest of this
// repo needs: a named, structured logger per component.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper around *zap.Logger. Components ask for a
// sub-logger via Named so every log line carries its origin without
// each component threading its own name into every call.
type Logger struct {
	z *zap.Logger
}

// New builds a production JSON logger at the given level, or a development
// console logger when dev is true.
func New(dev bool, level zapcore.Level) (*Logger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Named returns a child logger tagged with component, e.g. "multicall",
// "snapshotjob", "quality".
func (l *Logger) Named(component string) *Logger {
	return &Logger{z: l.z.Named(component)}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error { return l.z.Sync() }

// Raw exposes the underlying *zap.Logger for call sites (e.g. gorm's
// logger adapter) that need the concrete type.
func (l *Logger) Raw() *zap.Logger { return l.z }
