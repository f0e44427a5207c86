// Package logging provides zap logger helpers.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects where console lines go and how verbose they are.
type Config struct {
	// Development lowers the level to debug and annotates lines with the caller.
	Development bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// New builds the console logger used by a run. Lines carry no timestamp or
// level column; the tag prefix in the message plays that role and structured
// fields follow as JSON. Debug and info go to Stdout, warn and above to Stderr.
func New(cfg Config) *zap.Logger {
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	minLevel := zapcore.InfoLevel
	if cfg.Development {
		minLevel = zapcore.DebugLevel
	}
	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		NameKey:          "logger",
		CallerKey:        "caller",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
	if !cfg.Development {
		encCfg.NameKey = ""
		encCfg.CallerKey = ""
	}
	enc := zapcore.NewConsoleEncoder(encCfg)

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l < zapcore.WarnLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel
	})
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(stdout)), low),
		zapcore.NewCore(enc.Clone(), zapcore.Lock(zapcore.AddSync(stderr)), high),
	)

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1), zap.Development())
	}
	return zap.New(core, opts...)
}
