package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCoreWithWriters tees entries to console and file. The file
// always gets JSON; the console gets colored text in development mode
// and JSON otherwise. A nil console writer means stderr.
func NewMultiCoreWithWriters(level zapcore.Level, console, file zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), file, level)
	return zapcore.NewTee(NewConsoleCore(level, console, isDev), fileCore)
}

// NewConsoleCore returns the console half of the tee on its own.
func NewConsoleCore(level zapcore.Level, console zapcore.WriteSyncer, isDev bool) zapcore.Core {
	if console == nil {
		console = zapcore.Lock(os.Stderr)
	}
	var enc zapcore.Encoder
	if isDev {
		enc = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		enc = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	return zapcore.NewCore(enc, console, level)
}
