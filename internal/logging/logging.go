// Package logging wraps zap with lun's own verbosity conventions: a
// single human-readable stderr stream whose level is raised by
// -v/-vv/--trace, matching the teacher's structured-logging style
// without its file-log tee (lun is a short-lived CLI run, not a
// service with a log directory to rotate).
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field aliases keep call sites terse and match the teacher's naming.
type Field = zap.Field

var (
	String = zap.String
	Int    = zap.Int
	Bool   = zap.Bool
	Any    = zap.Any
	Error  = zap.Error
)

// Verbosity maps lun's -v flag count (and --trace) onto a zap level.
type Verbosity int

const (
	Normal Verbosity = iota
	Debug
	Trace // reported as zap's Debug level; lun has no Trace level of its own
)

func VerbosityFromCount(count int, trace bool) Verbosity {
	if trace {
		return Trace
	}
	if count > 0 {
		return Debug
	}
	return Normal
}

func (v Verbosity) zapLevel() zapcore.Level {
	switch v {
	case Debug, Trace:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a stderr-only, human-readable logger at the given
// verbosity. Level names are colored when colorize is true.
func New(v Verbosity, colorize bool) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if colorize {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		v.zapLevel(),
	)
	return zap.New(core)
}

// Nop returns a logger that discards everything, for tests and library
// embedders that don't want lun's own log stream.
func Nop() *zap.Logger {
	return zap.NewNop()
}
