// Package logging builds the zap logger qubeforge logs through.
//
// Console output is a human-readable, optionally colored line per event.
// When a log file is configured, every event at debug level and above is
// additionally written to it as JSON, rotated by lumberjack. Provisioning
// runs take hours, so the file is what an operator reads afterwards.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options holds configuration for the logger.
type Options struct {
	// Level is the minimum console level: debug, info, warn or error.
	Level string
	// Color enables ANSI colored level names on the console.
	Color bool
	// FilePath enables JSON file output when non-empty.
	FilePath string
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// Console receives console output. Defaults to os.Stderr.
	Console io.Writer
}

// DefaultOptions returns info-level colored console logging without a file.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Color:      true,
		MaxSizeMB:  20,
		MaxBackups: 3,
	}
}

// New creates a logger from opts.
func New(opts Options) (*zap.SugaredLogger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	consoleCfg.CallerKey = ""
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.Color {
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(zapcore.AddSync(console)), level),
	}

	if opts.FilePath != "" {
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder

		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(rotator), zapcore.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar(), nil
}
