// Package logger provides leveled logging for lectern.
// Debug and info messages are printed only in verbose mode (the --verbose flag).
// Warnings and errors are always printed, since they report skipped pages,
// dropped chunks and isolation violations that operators must see.
//
// An optional rotating JSON file sink records every message regardless of
// verbosity.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	console           = newConsole(os.Stderr)
	file    *zap.Logger
	rotator *lumberjack.Logger
)

// newConsole builds the human-readable logger: "[LEVEL] message".
func newConsole(w io.Writer) *zap.Logger {
	cfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      bracketLevelEncoder,
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel)
	return zap.New(core)
}

// newFile builds the JSON file logger.
func newFile(w io.Writer) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.TimeKey = "time"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core)
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for console logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	console = newConsole(w)
}

// SetFile mirrors every message, as JSON, into a size-rotated log file.
// An empty path disables the file sink.
func SetFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = file.Sync()
		if err := rotator.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		rotator, file = nil, nil
	}
	if path == "" {
		return nil
	}

	rotator = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	file = newFile(rotator)
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = console.Sync()
	if file != nil {
		_ = file.Sync()
	}
}

func log(level zapcore.Level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if file != nil {
		write(file, level, msg)
	}
	if level < zapcore.WarnLevel && !verbose {
		return
	}
	write(console, level, msg)
}

func write(l *zap.Logger, level zapcore.Level, msg string) {
	if ce := l.Check(level, msg); ce != nil {
		ce.Write()
	}
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	log(zapcore.DebugLevel, format, args...)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	log(zapcore.InfoLevel, format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	log(zapcore.WarnLevel, format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	log(zapcore.ErrorLevel, format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}
