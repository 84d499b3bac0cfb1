package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the zap preset, encoding and minimum level.
type Config struct {
	// Development switches to zap's development preset (stack traces on
	// warn, caller info, human friendly defaults).
	Development bool
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" (default) or "console".
	Format string
}

var (
	mu     sync.RWMutex
	logger = stderrLogger(zapcore.Lock(os.Stderr))
)

// stderrLogger is the logger in effect before SetLogger, so startup
// failures are still reported.
func stderrLogger(w zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, zapcore.InfoLevel))
}

// New builds a zap logger from cfg. An unparseable level falls back to info.
func New(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Format {
	case "console":
		zapCfg.Encoding = "console"
	default:
		zapCfg.Encoding = "json"
	}

	if cfg.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}

// SetLogger installs l as the process-wide logger used by the package
// level helpers. A nil l restores the stderr default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = stderrLogger(zapcore.Lock(os.Stderr))
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the process-wide logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) {
	L().Sugar().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	L().Sugar().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	L().Sugar().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	L().Sugar().Errorw(msg, extended...)
}
