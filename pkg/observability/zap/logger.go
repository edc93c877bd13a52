// Package zap implements observability.StructuredLogger on go.uber.org/zap.
package zap

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theory-cloud/todostack/pkg/observability"
	"github.com/theory-cloud/todostack/pkg/sanitization"
)

const (
	levelDebug = "debug"
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"
)

type Option func(*loggerOptions)

type loggerOptions struct {
	zapLogger *ubzap.Logger
	sanitizer observability.SanitizerFunc
	output    io.Writer
}

// WithZapLogger logs through an existing zap logger instead of building one from config.
func WithZapLogger(logger *ubzap.Logger) Option {
	return func(opts *loggerOptions) {
		opts.zapLogger = logger
	}
}

func WithSanitizer(fn observability.SanitizerFunc) Option {
	return func(opts *loggerOptions) {
		opts.sanitizer = fn
	}
}

// WithOutput redirects encoded entries; the default is stdout.
func WithOutput(w io.Writer) Option {
	return func(opts *loggerOptions) {
		opts.output = w
	}
}

type zapCore struct {
	logger    *ubzap.Logger
	sanitizer observability.SanitizerFunc

	closeOnce sync.Once
	closed    atomic.Bool

	entriesLogged   atomic.Int64
	flushCount      atomic.Int64
	errorCount      atomic.Int64
	lastFlushNanos  atomic.Int64
	totalFlushNanos atomic.Int64
	lastError       atomic.Value
}

type Logger struct {
	core *zapCore
	log  *ubzap.Logger
}

var _ observability.StructuredLogger = (*Logger)(nil)

func NewZapLogger(config observability.LoggerConfig, options ...Option) (observability.StructuredLogger, error) {
	cfg := normalizeLoggerConfig(config, observability.IsLambda())

	opts := &loggerOptions{
		sanitizer: sanitization.SanitizeFieldValue,
		output:    os.Stdout,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(opts)
	}

	base := opts.zapLogger
	if base == nil {
		level, err := parseZapLevel(cfg.Level)
		if err != nil {
			return nil, err
		}

		enc := zapEncoderConfig(cfg.EnableCaller)
		var encoder zapcore.Encoder
		switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
		case "console":
			encoder = zapcore.NewConsoleEncoder(enc)
		case "json":
			encoder = zapcore.NewJSONEncoder(enc)
		default:
			return nil, errors.New("observability/zap: unsupported log format")
		}

		core := zapcore.NewCore(encoder, zapcore.AddSync(opts.output), level)
		base = ubzap.New(core)
		if cfg.EnableCaller {
			base = base.WithOptions(ubzap.AddCaller())
		}
		if cfg.EnableStack {
			base = base.WithOptions(ubzap.AddStacktrace(zapcore.ErrorLevel))
		}
	}

	zcore := &zapCore{logger: base, sanitizer: opts.sanitizer}
	zcore.lastError.Store("")

	return &Logger{core: zcore, log: base}, nil
}

func normalizeLoggerConfig(config observability.LoggerConfig, inLambda bool) observability.LoggerConfig {
	cfg := config
	if strings.TrimSpace(cfg.Format) == "" {
		if inLambda {
			cfg.Format = "json"
		} else {
			cfg.Format = "console"
		}
	}
	if strings.TrimSpace(cfg.Level) == "" {
		cfg.Level = levelInfo
	}
	return cfg
}

func parseZapLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case levelDebug:
		return zapcore.DebugLevel, nil
	case levelInfo, "":
		return zapcore.InfoLevel, nil
	case levelWarn, "warning":
		return zapcore.WarnLevel, nil
	case levelError:
		return zapcore.ErrorLevel, nil
	default:
		return 0, errors.New("observability/zap: unsupported log level")
	}
}

func zapEncoderConfig(enableCaller bool) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if enableCaller {
		enc.CallerKey = "caller"
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return enc
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.logEntry(levelDebug, message, fields...)
}
func (l *Logger) Info(message string, fields ...map[string]any) {
	l.logEntry(levelInfo, message, fields...)
}
func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.logEntry(levelWarn, message, fields...)
}
func (l *Logger) Error(message string, fields ...map[string]any) {
	l.logEntry(levelError, message, fields...)
}

func (l *Logger) WithField(key string, value any) observability.StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) observability.StructuredLogger {
	return l.with(anyFields(fields, l.core.sanitizer)...)
}

func (l *Logger) WithRequestID(requestID string) observability.StructuredLogger {
	return l.with(ubzap.String("request_id", sanitization.SanitizeLogString(requestID)))
}

func (l *Logger) WithRouteKey(routeKey string) observability.StructuredLogger {
	return l.with(ubzap.String("route_key", sanitization.SanitizeLogString(routeKey)))
}

func (l *Logger) WithTraceID(traceID string) observability.StructuredLogger {
	return l.with(ubzap.String("trace_id", sanitization.SanitizeLogString(traceID)))
}

func (l *Logger) with(fields ...ubzap.Field) *Logger {
	return &Logger{core: l.core, log: l.log.With(fields...)}
}

func (l *Logger) Flush(_ context.Context) error {
	if l == nil || l.core == nil {
		return nil
	}

	start := time.Now()
	l.core.flushCount.Add(1)
	err := l.core.sync()

	l.core.lastFlushNanos.Store(time.Now().UnixNano())
	l.core.totalFlushNanos.Add(time.Since(start).Nanoseconds())
	return err
}

func (l *Logger) Close() error {
	if l == nil || l.core == nil {
		return nil
	}
	var err error
	l.core.closeOnce.Do(func() {
		l.core.closed.Store(true)
		err = l.core.sync()
	})
	return err
}

func (l *Logger) IsHealthy() bool {
	if l == nil || l.core == nil || l.core.closed.Load() {
		return false
	}
	return l.core.lastErrorString() == ""
}

func (l *Logger) GetStats() observability.LoggerStats {
	if l == nil || l.core == nil {
		return observability.LoggerStats{}
	}

	flushCount := l.core.flushCount.Load()
	totalFlush := l.core.totalFlushNanos.Load()
	avg := time.Duration(0)
	if flushCount > 0 && totalFlush > 0 {
		avg = time.Duration(totalFlush / flushCount)
	}

	return observability.LoggerStats{
		LastFlush:     time.Unix(0, l.core.lastFlushNanos.Load()),
		LastError:     l.core.lastErrorString(),
		EntriesLogged: l.core.entriesLogged.Load(),
		FlushCount:    flushCount,
		ErrorCount:    l.core.errorCount.Load(),
		AverageFlush:  avg,
	}
}

func (l *Logger) logEntry(level string, message string, fields ...map[string]any) {
	if l == nil || l.core == nil || l.log == nil || l.core.closed.Load() {
		return
	}

	message = sanitization.SanitizeLogString(message)
	zfields := anyFields(mergeFieldSets(fields...), l.core.sanitizer)

	switch level {
	case levelDebug:
		l.log.Debug(message, zfields...)
	case levelWarn:
		l.log.Warn(message, zfields...)
	case levelError:
		l.log.Error(message, zfields...)
	default:
		l.log.Info(message, zfields...)
	}
	l.core.entriesLogged.Add(1)
}

func anyFields(fields map[string]any, sanitizerFn observability.SanitizerFunc) []ubzap.Field {
	if len(fields) == 0 {
		return nil
	}
	if sanitizerFn == nil {
		sanitizerFn = sanitization.SanitizeFieldValue
	}
	out := make([]ubzap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, ubzap.Any(k, sanitizerFn(k, v)))
	}
	return out
}

func mergeFieldSets(fieldSets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, set := range fieldSets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

func (c *zapCore) sync() error {
	err := c.logger.Sync()
	if err != nil && !isIgnorableSyncError(err) {
		c.errorCount.Add(1)
		c.lastError.Store(err.Error())
		return err
	}
	return nil
}

// Sync on a terminal stdout reports EINVAL or ENOTTY; that is not a logging failure.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

func (c *zapCore) lastErrorString() string {
	lastError, ok := c.lastError.Load().(string)
	if !ok {
		return ""
	}
	return lastError
}
