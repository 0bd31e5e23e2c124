package gorollup

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel the minimum level a Logger writes
type LogLevel int8

const (
	Debug LogLevel = iota - 1
	Info
	Warn
	Error
)

// Logger is the printf style logger used by GoRollup
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
}

type logFieldsKey struct{}

// WithLogFields returns a context whose log lines carry fields in addition to the message
func WithLogFields(ctx context.Context, fields ...zap.Field) context.Context {
	existing, _ := ctx.Value(logFieldsKey{}).([]zap.Field)
	merged := make([]zap.Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, logFieldsKey{}, merged)
}

func logFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(logFieldsKey{}).([]zap.Field)
	return fields
}

// NewLogger create a json Logger writing entries of at least level to w
func NewLogger(w io.Writer, level LogLevel) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), zapcore.Level(level))
	return NewZapLogger(zap.New(core))
}

// NewZapLogger adapt a zap logger to Logger
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapLogger) with(ctx context.Context) *zap.SugaredLogger {
	fields := logFields(ctx)
	if len(fields) == 0 {
		return l.sugar
	}
	return l.sugar.Desugar().With(fields...).Sugar()
}

func (l *zapLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.with(ctx).Debugf(msg, args...)
}

func (l *zapLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.with(ctx).Infof(msg, args...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.with(ctx).Warnf(msg, args...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.with(ctx).Errorf(msg, args...)
}
