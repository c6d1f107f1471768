package app

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// parseLevel maps a log level name to a zap level. Unknown names map to info.
func parseLevel(level string) (zapcore.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// newLogger returns a JSON logger writing to w. Debug enables V(1) messages.
// w is stderr in every command because stdout carries the CGI response and
// scan output.
func newLogger(level string, w zapcore.WriteSyncer) logr.Logger {
	lvl, ok := parseLevel(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zap.NewAtomicLevelAt(lvl))
	logger := zapr.NewLogger(zap.New(core))
	if !ok {
		logger.Info("Invalid log level, using info", "value", level)
	}
	return logger
}
