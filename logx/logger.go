package logx

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger passed through every solve phase. It
// wraps zap the way the teacher's own logging package does, exposing the
// small surface the solver actually uses.
type Logger struct {
	sugar *zap.SugaredLogger
	name  string
}

// NewLogger builds a production logger at the given minimum level.
func NewLogger(name string, level Level) *Logger {
	zapLevel := zapcore.InfoLevel
	switch level {
	case DEBUG:
		zapLevel = zapcore.DebugLevel
	case WARN:
		zapLevel = zapcore.WarnLevel
	case ERROR:
		zapLevel = zapcore.ErrorLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar().Named(name), name: name}
}

// NewTestLogger returns a logger that writes through tb.Log, matching the
// `logging.NewTestLogger(t)` idiom used throughout the teacher's tests.
func NewTestLogger(tb testing.TB) *Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&testWriter{tb}),
		zapcore.DebugLevel,
	)
	return &Logger{sugar: zap.New(core).Sugar().Named("test"), name: "test"}
}

type testWriter struct{ tb testing.TB }

func (w *testWriter) Write(p []byte) (int, error) {
	w.tb.Log(string(p))
	return len(p), nil
}

// Named returns a child logger scoped under an additional name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), name: l.name + "." + name}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
