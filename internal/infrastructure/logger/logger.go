// Package logger builds the zap loggers used by crmctl and the services
// behind it, and carries correlation fields on the context.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and destination of the log stream
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // json or console
	Output  string // stderr, stdout or a file path
	Verbose bool   // forces debug regardless of Level
}

var levels = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// Level resolves a configured level name. Unknown names mean info.
func Level(name string) zapcore.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return zapcore.InfoLevel
}

// New opens the configured output and returns a logger writing to it.
// Command output owns stdout, so the default destination is stderr.
func New(opts Options) (*zap.Logger, error) {
	output := opts.Output
	if output == "" {
		output = "stderr"
	}
	// The sink lives as long as the process
	sink, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("opening log output %s: %w", output, err)
	}

	level := Level(opts.Level)
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(encoder(opts.Format, isTerminal(output)), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func encoder(format string, terminal bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder

	if strings.EqualFold(format, "json") {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if terminal {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func isTerminal(output string) bool {
	return output == "stderr" || output == "stdout"
}
